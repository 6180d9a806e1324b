package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the token pair of a signed-in user.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// User is the identity resolved from the access token.
type User struct {
	ID        string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth holds the current session. Signing in and refreshing are done by
// the host app, which hands the resulting tokens to SetSession.
type Auth struct {
	mu      sync.RWMutex
	session *Session
	now     func() time.Time
}

func NewAuth() *Auth {
	return &Auth{now: time.Now}
}

func (a *Auth) SetSession(s Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = &s
}

func (a *Auth) ClearSession() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
}

func (a *Auth) Session() (Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return Session{}, false
	}
	return *a.session, true
}

// CurrentUser decodes the access token. The signature is not checked here:
// the backend verifies it on every request, the client only needs the
// subject. A missing, malformed or expired token yields ErrNotAuthenticated.
func (a *Auth) CurrentUser(_ context.Context) (User, error) {
	s, ok := a.Session()
	if !ok || s.AccessToken == "" {
		return User{}, ErrNotAuthenticated
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return User{}, fmt.Errorf("%w: parse access token: %v", ErrNotAuthenticated, err)
	}
	if claims.Subject == "" {
		return User{}, fmt.Errorf("%w: access token has no subject", ErrNotAuthenticated)
	}

	u := User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		u.ExpiresAt = claims.ExpiresAt.Time
		if !a.now().Before(u.ExpiresAt) {
			return User{}, fmt.Errorf("%w: session expired at %s", ErrNotAuthenticated, u.ExpiresAt.Format(time.RFC3339))
		}
	}
	return u, nil
}
