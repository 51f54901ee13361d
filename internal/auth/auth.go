// Package auth implements the authorization-code grant against the music
// service, the session token store and the gate applied before every
// authenticated upstream call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/spoinder/internal/apperrors"
)

const (
	// CodeTTL is how long an authorization code is considered fresh.
	CodeTTL = 10 * time.Minute

	// defaultTokenTTL applies when the token response carries no expires_in.
	defaultTokenTTL = time.Hour

	defaultTimeout = 15 * time.Second
)

// Scopes requested on every login.
var Scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// Flow exchanges authorization codes and refresh tokens with the accounts service.
type Flow struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
	logger     *log.Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithEndpoint overrides the accounts service endpoints.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(f *Flow) {
		f.config.Endpoint = ep
	}
}

// WithClock sets the time source used for expiry computations.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// WithTimeout bounds every token request.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.httpClient.Timeout = d
	}
}

// WithLogger sets the logger used to report refresh failures.
func WithLogger(l *log.Logger) Option {
	return func(f *Flow) {
		f.logger = l
	}
}

// NewFlow creates a Flow for the given client credentials and redirect URI.
func NewFlow(clientID, clientSecret, redirectURI string, opts ...Option) *Flow {
	f := &Flow{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  spotifyauth.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Now returns the current time according to the Flow's clock.
func (f *Flow) Now() time.Time {
	return f.now()
}

// AuthURL returns the URL the user is redirected to for consent.
func (f *Flow) AuthURL(state string) string {
	return f.config.AuthCodeURL(state)
}

// Complete exchanges a one-time code for tokens and starts a new Session.
// Returns apperrors.ErrMissingCode for an empty code and an
// apperrors.ErrUpstreamRejected/ErrUpstreamUnavailable error when the
// exchange fails.
func (f *Flow) Complete(ctx context.Context, code string) (*Session, error) {
	if code == "" {
		return nil, apperrors.ErrMissingCode
	}

	token, err := f.config.Exchange(f.clientContext(ctx), code)
	if err != nil {
		return nil, apperrors.Upstream("exchange authorization code", err)
	}

	now := f.now()
	return &Session{
		Code:         code,
		CodeExpiry:   now.Add(CodeTTL),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  now.Add(tokenTTL(token)),
	}, nil
}

// Refresh mints a new access token from the session's refresh token. The
// refresh token and the authorization expiry are left untouched.
//
// Returns nil when there is no refresh token or the accounts service rejects
// it; the caller must then require a new authorization.
func (f *Flow) Refresh(ctx context.Context, s *Session) *Session {
	if s == nil || s.RefreshToken == "" {
		return nil
	}

	src := f.config.TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: s.RefreshToken})
	token, err := src.Token()
	if err != nil {
		f.logger.Warn("token refresh failed", "op", "refresh token", "err", apperrors.Upstream("refresh token", err))
		return nil
	}

	next := s.Clone()
	next.AccessToken = token.AccessToken
	next.TokenExpiry = f.now().Add(tokenTTL(token))
	return next
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

func tokenTTL(token *oauth2.Token) time.Duration {
	if token.ExpiresIn > 0 {
		return time.Duration(token.ExpiresIn) * time.Second
	}
	if !token.Expiry.IsZero() {
		if d := time.Until(token.Expiry); d > 0 {
			return d
		}
	}
	return defaultTokenTTL
}

// Refresher mints a new access token for a session, or returns nil.
type Refresher interface {
	Refresh(ctx context.Context, s *Session) *Session
}

// Guard applies the two-step credential gate before an authenticated call.
type Guard struct {
	refresher Refresher
	now       func() time.Time
}

// NewGuard creates a Guard using refresher and the given clock.
func NewGuard(refresher Refresher, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{refresher: refresher, now: now}
}

// Ensure returns a session whose access token may be sent upstream.
//
// A stale authorization yields apperrors.ErrUnauthorized without any network
// call. An expired token is refreshed exactly once; refreshed is true when the
// returned session differs from s and must be stored by the caller.
func (g *Guard) Ensure(ctx context.Context, s *Session) (sess *Session, refreshed bool, err error) {
	now := g.now()
	if !s.IsAuthorizationValid(now) {
		return nil, false, fmt.Errorf("authorization expired: %w", apperrors.ErrUnauthorized)
	}
	if s.IsTokenValid(now) {
		return s, false, nil
	}

	next := g.refresher.Refresh(ctx, s)
	if next == nil {
		return nil, false, fmt.Errorf("refresh failed: %w", apperrors.ErrUnauthorized)
	}
	return next, true, nil
}

// Do runs op with a gated session. op is never invoked when the gate fails.
func (g *Guard) Do(ctx context.Context, s *Session, op func(ctx context.Context, s *Session) error) (*Session, error) {
	sess, _, err := g.Ensure(ctx, s)
	if err != nil {
		return nil, err
	}
	return sess, op(ctx, sess)
}

// IsUnauthorized reports whether err requires the user to authenticate again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apperrors.ErrUnauthorized)
}
