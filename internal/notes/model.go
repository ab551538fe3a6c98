package notes

import (
	"time"

	"github.com/devpadhq/devpad-server/internal/users"
)

const (
	// DefaultTitle is applied when a note is created without a title.
	DefaultTitle = "Untitled"
	// DefaultLanguage is applied when a note is created without a language tag.
	DefaultLanguage = "plaintext"
)

// Note models a persisted note row. Tags attach through the note_tags join
// table; deleting the owning user cascades to its notes.
type Note struct {
	ID           uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       uint64      `gorm:"column:user_id;not null;index:idx_notes_user_updated,priority:1"`
	User         *users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Title        string      `gorm:"column:title;type:text;not null"`
	ContentMD    string      `gorm:"column:content_md;type:text;not null"`
	Language     string      `gorm:"column:language;size:30;not null"`
	Favorite     bool        `gorm:"column:favorite;not null;default:false"`
	CreatedAt    time.Time   `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time   `gorm:"column:updated_at;index:idx_notes_user_updated,priority:2"`
	LastViewedAt *time.Time  `gorm:"column:last_viewed_at"`
	Tags         []Tag       `gorm:"many2many:note_tags"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Tag is a free-form label shared across notes and users. Names are unique
// as written; no case or whitespace normalization is applied.
type Tag struct {
	ID   uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;type:text;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// Fields carries the optional note attributes accepted by Create and Update.
// A nil pointer means the field was not supplied; a nil Tags slice leaves the
// tag set untouched, while a non-nil (possibly empty) slice fully replaces it.
type Fields struct {
	Title     *string
	ContentMD *string
	Language  *string
	Favorite  *bool
	Tags      []string
}

// NoteView is the JSON projection of a note with resolved tag names.
type NoteView struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title"`
	ContentMD    string     `json:"content_md"`
	Language     string     `json:"language"`
	Favorite     bool       `json:"favorite"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastViewedAt *time.Time `json:"last_viewed_at"`
}

func newNoteView(note Note) NoteView {
	tagNames := make([]string, 0, len(note.Tags))
	for _, tag := range note.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	return NoteView{
		ID:           note.ID,
		Title:        note.Title,
		ContentMD:    note.ContentMD,
		Language:     note.Language,
		Favorite:     note.Favorite,
		Tags:         tagNames,
		CreatedAt:    note.CreatedAt,
		UpdatedAt:    note.UpdatedAt,
		LastViewedAt: note.LastViewedAt,
	}
}
