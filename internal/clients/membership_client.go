package clients

import (
	"context"
	"net/http"
	"time"
)

// Session is the login response.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	_, err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &s)
	if err != nil {
		return nil, err
	}
	c.token = s.AccessToken
	return &s, nil
}
