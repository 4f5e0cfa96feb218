// internal/membership/domain.go
package membership

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"librarian/internal/catalog"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient permissions")
)

// Claims is the JWT payload carried by access tokens.
type Claims struct {
	PatronID int64  `json:"pid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token was issued to an administrator.
func (c Claims) IsAdmin() bool {
	return c.Role == catalog.RoleAdmin
}

// CanActFor reports whether the caller may act on behalf of patronID.
func (c Claims) CanActFor(patronID int64) bool {
	return c.IsAdmin() || c.PatronID == patronID
}

// Session is returned by a successful login.
type Session struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Patron      *catalog.Patron `json:"patron"`
}
