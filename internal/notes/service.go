package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrNoteNotFound indicates the note id references no stored note.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrNoteForbidden indicates the note exists but belongs to another user.
	ErrNoteForbidden = errors.New("notes: note owned by another user")
)

// ServiceError wraps a storage failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "notes.service.new"
	opListNotes     = "notes.list_notes"
	opCreateNote    = "notes.create_note"
	opUpdateNote    = "notes.update_note"
	opDeleteNote    = "notes.delete_note"
	opAuthorizeNote = "notes.authorize_note"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies required by the note store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists notes and their tag associations.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the note store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// List returns the user's notes ordered most recently updated first, ties
// broken by id descending, each with its tag names resolved.
func (s *Service) List(ctx context.Context, userID uint64) ([]NoteView, error) {
	if s.db == nil {
		s.logError(opListNotes, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListNotes, "missing_database", errMissingDatabase)
	}

	var rows []Note
	if err := s.db.WithContext(ctx).
		Preload("Tags").
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.Uint64("user_id", userID))
		return nil, newServiceError(opListNotes, "query_failed", err)
	}

	views := make([]NoteView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newNoteView(row))
	}
	return views, nil
}

// Create persists a new note for the user. Absent fields take their defaults;
// tag names are resolved get-or-create and attached in the same transaction.
func (s *Service) Create(ctx context.Context, userID uint64, fields Fields) (uint64, error) {
	if s.db == nil {
		s.logError(opCreateNote, "missing_database", errMissingDatabase)
		return 0, newServiceError(opCreateNote, "missing_database", errMissingDatabase)
	}

	now := s.clock().UTC()
	note := Note{
		UserID:    userID,
		Title:     DefaultTitle,
		ContentMD: "",
		Language:  DefaultLanguage,
		Favorite:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fields.Title != nil {
		note.Title = *fields.Title
	}
	if fields.ContentMD != nil {
		note.ContentMD = *fields.ContentMD
	}
	if fields.Language != nil {
		note.Language = *fields.Language
	}
	if fields.Favorite != nil {
		note.Favorite = *fields.Favorite
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := resolveTags(tx, fields.Tags)
		if err != nil {
			s.logError(opCreateNote, "tag_resolve_failed", err, zap.Uint64("user_id", userID))
			return newServiceError(opCreateNote, "tag_resolve_failed", err)
		}
		note.Tags = tags

		if err := tx.Create(&note).Error; err != nil {
			s.logError(opCreateNote, "note_insert_failed", err, zap.Uint64("user_id", userID))
			return newServiceError(opCreateNote, "note_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	return note.ID, nil
}

// Update overwrites the provided fields on the user's note. A nil Tags slice
// leaves associations untouched; a non-nil slice replaces them wholesale. The
// update timestamp is refreshed on every call.
func (s *Service) Update(ctx context.Context, userID, noteID uint64, fields Fields) error {
	if s.db == nil {
		s.logError(opUpdateNote, "missing_database", errMissingDatabase)
		return newServiceError(opUpdateNote, "missing_database", errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.takeOwnedNote(tx, opUpdateNote, userID, noteID)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"updated_at": s.clock().UTC(),
		}
		if fields.Title != nil {
			updates["title"] = *fields.Title
		}
		if fields.ContentMD != nil {
			updates["content_md"] = *fields.ContentMD
		}
		if fields.Language != nil {
			updates["language"] = *fields.Language
		}
		if fields.Favorite != nil {
			updates["favorite"] = *fields.Favorite
		}

		if err := tx.Model(&note).UpdateColumns(updates).Error; err != nil {
			s.logError(opUpdateNote, "note_update_failed", err,
				zap.Uint64("user_id", userID),
				zap.Uint64("note_id", noteID))
			return newServiceError(opUpdateNote, "note_update_failed", err)
		}

		if fields.Tags != nil {
			tags, err := resolveTags(tx, fields.Tags)
			if err != nil {
				s.logError(opUpdateNote, "tag_resolve_failed", err,
					zap.Uint64("user_id", userID),
					zap.Uint64("note_id", noteID))
				return newServiceError(opUpdateNote, "tag_resolve_failed", err)
			}
			if err := tx.Model(&note).Association("Tags").Replace(tags); err != nil {
				s.logError(opUpdateNote, "tag_replace_failed", err,
					zap.Uint64("user_id", userID),
					zap.Uint64("note_id", noteID))
				return newServiceError(opUpdateNote, "tag_replace_failed", err)
			}
		}
		return nil
	})
}

// Delete removes the user's note and its tag associations. Tag rows survive
// even when no note references them anymore.
func (s *Service) Delete(ctx context.Context, userID, noteID uint64) error {
	if s.db == nil {
		s.logError(opDeleteNote, "missing_database", errMissingDatabase)
		return newServiceError(opDeleteNote, "missing_database", errMissingDatabase)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.takeOwnedNote(tx, opDeleteNote, userID, noteID)
		if err != nil {
			return err
		}

		if err := tx.Model(&note).Association("Tags").Clear(); err != nil {
			s.logError(opDeleteNote, "tag_clear_failed", err,
				zap.Uint64("user_id", userID),
				zap.Uint64("note_id", noteID))
			return newServiceError(opDeleteNote, "tag_clear_failed", err)
		}
		if err := tx.Delete(&note).Error; err != nil {
			s.logError(opDeleteNote, "note_delete_failed", err,
				zap.Uint64("user_id", userID),
				zap.Uint64("note_id", noteID))
			return newServiceError(opDeleteNote, "note_delete_failed", err)
		}
		return nil
	})
}

// EnsureOwned answers the same existence-then-ownership decision as Update
// and Delete without touching the note.
func (s *Service) EnsureOwned(ctx context.Context, userID, noteID uint64) error {
	if s.db == nil {
		s.logError(opAuthorizeNote, "missing_database", errMissingDatabase)
		return newServiceError(opAuthorizeNote, "missing_database", errMissingDatabase)
	}
	_, err := s.takeOwnedNote(s.db.WithContext(ctx), opAuthorizeNote, userID, noteID)
	return err
}

// takeOwnedNote loads the note and applies the existence-then-ownership
// ordering: a missing id is always not-found, a foreign owner always
// forbidden, regardless of the rest of the request.
func (s *Service) takeOwnedNote(tx *gorm.DB, operation string, userID, noteID uint64) (Note, error) {
	var note Note
	err := tx.Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		s.logError(operation, "note_select_failed", err,
			zap.Uint64("user_id", userID),
			zap.Uint64("note_id", noteID))
		return Note{}, newServiceError(operation, "note_select_failed", err)
	}
	if note.UserID != userID {
		return Note{}, ErrNoteForbidden
	}
	return note, nil
}

// resolveTags maps tag names to rows, creating missing ones. The insert runs
// as ON CONFLICT DO NOTHING against the unique name index so concurrent
// requests using the same new name converge on a single row.
func resolveTags(tx *gorm.DB, names []string) ([]Tag, error) {
	resolved := make([]Tag, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}

		tag := Tag{Name: name}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&tag).Error; err != nil {
			return nil, err
		}
		if tag.ID == 0 {
			if err := tx.Where("name = ?", name).Take(&tag).Error; err != nil {
				return nil, err
			}
		}
		resolved = append(resolved, tag)
	}
	return resolved, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
