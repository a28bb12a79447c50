// Package auth holds the session credential and keeps the access token
// fresh for every component that talks to the network.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"listenlist/internal/logging"
)

// expiryMargin treats a token this close to expiry as already expired,
// so a request never leaves with a token that dies in flight.
const expiryMargin = 5 * time.Second

// ErrNoCredential means no refresh credential is stored; the caller
// must prompt for re-authentication, never retry silently.
var ErrNoCredential = errors.New("no stored credential, log in first")

// AuthError wraps failures to obtain a usable access token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Credential is the stored token pair. The access token carries an
// embedded expiry claim; the refresh token outlives it.
type Credential struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// Session is what EnsureValid hands to network callers.
type Session struct {
	Token  string
	UserID int64
}

// Storage persists the credential across process restarts.
type Storage interface {
	Load() (Credential, error)
	Save(Credential) error
}

// Refresher exchanges a refresh token for a new access token. The
// transport is opaque here beyond its success or failure.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
}

// Guard is the single choke point for token access. Concurrent callers
// needing a refresh share one in-flight exchange instead of racing.
type Guard struct {
	storage   Storage
	refresher Refresher
	now       func() time.Time
	group     singleflight.Group
	logger    zerolog.Logger
}

// NewGuard creates a token guard over the given storage and refresher.
func NewGuard(storage Storage, refresher Refresher) *Guard {
	return &Guard{
		storage:   storage,
		refresher: refresher,
		now:       time.Now,
		logger:    logging.Component("token_guard"),
	}
}

// EnsureValid returns a session whose token is good for at least the
// expiry margin, refreshing it first when needed.
func (g *Guard) EnsureValid(ctx context.Context) (Session, error) {
	cred, err := g.storage.Load()
	if err != nil || cred.RefreshToken == "" {
		return Session{}, &AuthError{Err: ErrNoCredential}
	}

	claims, ok := decodeClaims(cred.AccessToken)
	if ok && claims.UserID != 0 && !g.nearExpiry(claims) {
		return Session{Token: cred.AccessToken, UserID: claims.UserID}, nil
	}

	token, err := g.refresh(ctx, cred)
	if err != nil {
		return Session{}, &AuthError{Err: err}
	}

	claims, ok = decodeClaims(token)
	if !ok || claims.UserID == 0 {
		return Session{}, &AuthError{Err: errors.New("refreshed token has no user id")}
	}
	return Session{Token: token, UserID: claims.UserID}, nil
}

// PeekSession decodes the stored access token without refreshing it.
// The token may be expired; use it only for offline work that needs
// the viewer's user id, never for network calls.
func (g *Guard) PeekSession() (Session, error) {
	cred, err := g.storage.Load()
	if err != nil || cred.AccessToken == "" {
		return Session{}, &AuthError{Err: ErrNoCredential}
	}
	claims, ok := decodeClaims(cred.AccessToken)
	if !ok || claims.UserID == 0 {
		return Session{}, &AuthError{Err: errors.New("stored token has no user id")}
	}
	return Session{Token: cred.AccessToken, UserID: claims.UserID}, nil
}

// refresh deduplicates concurrent exchanges: every caller that misses
// the expiry check awaits the same pending operation.
func (g *Guard) refresh(ctx context.Context, cred Credential) (string, error) {
	token, err, _ := g.group.Do("refresh", func() (any, error) {
		access, err := g.refresher.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("exchange refresh token: %w", err)
		}

		cred.AccessToken = access
		if err := g.storage.Save(cred); err != nil {
			g.logger.Warn().Err(err).Msg("could not persist refreshed token")
		}
		g.logger.Debug().Msg("access token refreshed")
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (g *Guard) nearExpiry(claims *accessClaims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return g.now().After(claims.ExpiresAt.Time.Add(-expiryMargin))
}

// accessClaims is the subset of the access token we read. The client
// never verifies the signature; it only needs exp and user_id.
type accessClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func decodeClaims(token string) (*accessClaims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &accessClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
