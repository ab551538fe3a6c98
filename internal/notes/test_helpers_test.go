package notes

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devpadhq/devpad-server/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// stepClock advances one second per reading so every operation gets a
// strictly increasing timestamp.
type stepClock struct {
	current time.Time
}

func newStepClock() *stepClock {
	return &stepClock{current: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&users.User{}, &Tag{}, &Note{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    newStepClock().Now,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func createTestUser(t *testing.T, db *gorm.DB, email string) uint64 {
	t.Helper()
	user := users.User{Email: email, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

func mustCreate(t *testing.T, service *Service, userID uint64, fields Fields) uint64 {
	t.Helper()
	noteID, err := service.Create(t.Context(), userID, fields)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return noteID
}

func stringPtr(value string) *string {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}
