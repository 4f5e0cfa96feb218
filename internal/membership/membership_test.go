package membership

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/catalog"
	"librarian/internal/storage/storagetest"
)

type purgeSpy struct {
	purged []int64
}

func (p *purgeSpy) PurgePatron(_ context.Context, id int64) error {
	p.purged = append(p.purged, id)
	return nil
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := hashPassword("sifre123")
	require.NoError(t, err)
	assert.NotEqual(t, "sifre123", hash)

	ok, err := verifyPassword("sifre123", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("wrong", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifyPassword("x", "%%%", hash)
	assert.Error(t, err)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(catalog.NewMemoryStore(), nil, 100, storagetest.Discard())

	p, err := svc.Register(ctx, "ahmet", "ahmet@example.com", "sifre123")
	require.NoError(t, err)
	assert.Equal(t, catalog.RolePatron, p.Role)
	assert.NotEqual(t, "sifre123", p.PasswordHash)

	_, err = svc.Register(ctx, "ahmet", "", "other-pass")
	assert.ErrorIs(t, err, catalog.ErrUsernameTaken)

	got, err := svc.Authenticate(ctx, "ahmet", "sifre123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ahmet", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "ghost", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthRateLimit(t *testing.T) {
	ctx := context.Background()
	svc := NewService(catalog.NewMemoryStore(), nil, 2, storagetest.Discard())

	_, _ = svc.Authenticate(ctx, "a", "b")
	_, _ = svc.Authenticate(ctx, "a", "b")
	_, err := svc.Authenticate(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDeletePatronRejectsHoldersAndPurges(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	spy := &purgeSpy{}
	svc := NewService(store, spy, 100, storagetest.Discard())

	p, err := svc.Register(ctx, "holder", "", "sifre123")
	require.NoError(t, err)
	book := &catalog.Book{Title: "1984", Author: "George Orwell"}
	require.NoError(t, store.CreateBook(ctx, book))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.CheckoutBook(ctx, book.ID, p.ID, now.AddDate(0, 0, 14), now)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeletePatron(ctx, p.ID), catalog.ErrPatronHasLoans)
	assert.Empty(t, spy.purged)

	held, err := svc.HeldBooks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)

	_, err = store.ReturnBook(ctx, book.ID, now)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePatron(ctx, p.ID))
	assert.Equal(t, []int64{p.ID}, spy.purged)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	svc := NewService(store, nil, 100, storagetest.Discard())

	_, err := svc.EnsureAdmin(ctx, "admin", "")
	assert.Error(t, err, "cannot create admin without a password")

	admin, err := svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	again, err := svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	p, err := svc.Register(ctx, "librarian", "", "sifre123")
	require.NoError(t, err)
	promoted, err := svc.EnsureAdmin(ctx, "librarian", "")
	require.NoError(t, err)
	assert.Equal(t, p.ID, promoted.ID)
	assert.True(t, promoted.IsAdmin())
}

func TestTokens(t *testing.T) {
	tokens := NewTokens("secret", "librarian", time.Hour)
	p := &catalog.Patron{ID: 7, Username: "ahmet", Role: catalog.RolePatron}

	raw, exp, err := tokens.Issue(p)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.PatronID)
	assert.True(t, claims.CanActFor(7))
	assert.False(t, claims.CanActFor(9))

	other := NewTokens("secret", "someone-else", time.Hour)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, ErrUnauthorized)

	expired := NewTokens("secret", "librarian", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(p)
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("secret", "librarian", time.Hour)
	patronToken, _, err := tokens.Issue(&catalog.Patron{ID: 2, Username: "p", Role: catalog.RolePatron})
	require.NoError(t, err)
	adminToken, _, err := tokens.Issue(&catalog.Patron{ID: 1, Username: "admin", Role: catalog.RoleAdmin})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Authenticate(tokens)(RequireAdmin(ok))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"patron", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+patronToken) }, http.StatusForbidden},
		{"admin header", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+adminToken) }, http.StatusOK},
		{"admin cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "Bearer " + adminToken}) }, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/email-logs", nil)
			tc.setup(r)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
