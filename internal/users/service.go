package users

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrMissingCredentials indicates an empty email or password was supplied.
	ErrMissingCredentials = errors.New("users: email and password required")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates the email is unknown or the password does not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// ServiceConfig describes the dependencies required by the credential store.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service persists user accounts and verifies their credentials.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the credential store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		logger: logger,
	}, nil
}

// Register hashes the password, persists a new user and returns its id.
// The unique index on email is authoritative: a duplicate insert surfaces as
// a translated duplicate-key error, so concurrent registrations of the same
// email cannot race past a read-then-write check.
func (s *Service) Register(ctx context.Context, email, password string) (uint64, error) {
	if email == "" || password == "" {
		return 0, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return 0, err
	}

	user := User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrEmailTaken
		}
		s.logger.Error("user insert failed", zap.Error(err))
		return 0, err
	}

	return user.ID, nil
}

// Authenticate verifies the email/password pair and returns the owning user id.
// The bcrypt comparison is constant-time with respect to the stored hash.
func (s *Service) Authenticate(ctx context.Context, email, password string) (uint64, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err))
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}
