// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"librarian/internal/catalog"
)

// service implements the Service interface.
type service struct {
	store       catalog.Store
	purger      PatronPurger
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new membership service instance. Register and login
// share one limiter allowing perMinute attempts with an equal burst.
func NewService(store catalog.Store, purger PatronPurger, perMinute int, logger *slog.Logger) Service {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &service{
		store:       store,
		purger:      purger,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:      logger.With("component", "membership"),
		now:         time.Now,
	}
}

// Register creates a patron with the default role.
func (s *service) Register(ctx context.Context, username, email, password string) (*catalog.Patron, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	return s.create(ctx, username, email, password, catalog.RolePatron)
}

func (s *service) create(ctx context.Context, username, email, password, role string) (*catalog.Patron, error) {
	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p := &catalog.Patron{
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreatePatron(ctx, p); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "patron registered", "patron_id", p.ID, "username", p.Username, "role", role)
	return p, nil
}

// Authenticate verifies a patron's credentials and returns the patron if successful.
func (s *service) Authenticate(ctx context.Context, username, password string) (*catalog.Patron, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	p, err := s.store.GetPatronByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, p.PasswordSalt, p.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "failed login", "username", username)
		return nil, ErrInvalidCredentials
	}

	return p, nil
}

func (s *service) GetPatron(ctx context.Context, id int64) (*catalog.Patron, error) {
	return s.store.GetPatron(ctx, id)
}

func (s *service) ListPatrons(ctx context.Context, page catalog.Page) ([]catalog.Patron, error) {
	return s.store.ListPatrons(ctx, page)
}

// HeldBooks lists the books currently checked out by the patron.
func (s *service) HeldBooks(ctx context.Context, id int64) ([]catalog.Book, error) {
	if _, err := s.store.GetPatron(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListBooksByPatron(ctx, id)
}

// DeletePatron is rejected while the patron holds books. After the row is
// gone the patron's notifications and email-log references are purged.
func (s *service) DeletePatron(ctx context.Context, id int64) error {
	if err := s.store.DeletePatron(ctx, id); err != nil {
		return err
	}
	if s.purger != nil {
		if err := s.purger.PurgePatron(ctx, id); err != nil {
			return fmt.Errorf("purge patron %d: %w", id, err)
		}
	}
	s.logger.InfoContext(ctx, "patron deleted", "patron_id", id)
	return nil
}

// EnsureAdmin creates the admin account or promotes an existing one.
func (s *service) EnsureAdmin(ctx context.Context, username, password string) (*catalog.Patron, error) {
	existing, err := s.store.GetPatronByUsername(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			if err := s.store.SetPatronRole(ctx, existing.ID, catalog.RoleAdmin); err != nil {
				return nil, err
			}
			existing.Role = catalog.RoleAdmin
			s.logger.InfoContext(ctx, "promoted patron to admin", "patron_id", existing.ID)
		}
		return existing, nil
	case errors.Is(err, catalog.ErrNotFound):
		if password == "" {
			return nil, fmt.Errorf("admin %q does not exist and no password is configured", username)
		}
		return s.create(ctx, username, "", password, catalog.RoleAdmin)
	default:
		return nil, err
	}
}
