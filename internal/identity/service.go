package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service manages the user record lifecycle. It never deletes users.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// FindByPhone looks a user up by an already normalized phone number.
func (s *Service) FindByPhone(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhone(ctx, phone)
}

// FindByID looks a user up by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create registers a user for a normalized phone number. The new user counts
// as logged in at creation time.
func (s *Service) Create(ctx context.Context, phone string, name *string) (User, error) {
	now := s.now().UTC()
	user := User{
		ID:          uuid.NewString(),
		Phone:       phone,
		DisplayName: cleanName(name),
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// TouchLogin stamps the user's last login with the current time.
func (s *Service) TouchLogin(ctx context.Context, id string) error {
	return s.repo.TouchLogin(ctx, id, s.now())
}

// UpdateDisplayName changes the display name and returns the updated user.
func (s *Service) UpdateDisplayName(ctx context.Context, id string, name *string) (User, error) {
	if err := s.repo.UpdateDisplayName(ctx, id, cleanName(name)); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, id)
}

func cleanName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
