// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
)

// API is the subset of the zmb3 client used by this package.
type API interface {
	CurrentUser(ctx context.Context) (*spotify.PrivateUser, error)
	CurrentUsersPlaylists(ctx context.Context, opts ...spotify.RequestOption) (*spotify.SimplePlaylistPage, error)
	GetPlaylistItems(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error)
	GetTracks(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullTrack, error)
	CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotify.FullPlaylist, error)
	ReplacePlaylistTracks(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) error
	AddTracksToPlaylist(ctx context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error)
}

var _ API = (*spotify.Client)(nil)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    API
	logger *log.Logger
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api API, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{api: api, logger: logger}
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", c.fail("get current user", "", err)
	}
	return user.ID, nil
}

// fail classifies an upstream error and logs it with the operation context.
func (c *Client) fail(op, playlistID string, err error) error {
	err = apperrors.Upstream(op, err)
	kv := []any{"op", op, "err", err}
	if playlistID != "" {
		kv = append(kv, "playlist", playlistID)
	}
	c.logger.Error("upstream call failed", kv...)
	return err
}

// Factory builds per-session clients that share one request pacer.
type Factory struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	base    http.RoundTripper
	logger  *log.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBaseURL points clients at a different Web API root (must end in "/").
func WithBaseURL(u string) FactoryOption {
	return func(f *Factory) {
		f.baseURL = u
	}
}

// WithTimeout bounds every upstream call.
func WithTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.timeout = d
	}
}

// WithRateLimit caps outgoing requests per second across all sessions.
// A non-positive value disables pacing.
func WithRateLimit(rps int) FactoryOption {
	return func(f *Factory) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
}

// WithLogger sets the logger handed to every client.
func WithLogger(l *log.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// NewFactory creates a Factory with a 15 second timeout and no pacing.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		timeout: 15 * time.Second,
		base:    http.DefaultTransport,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForSession returns a client that sends the session's access token as is.
// The token is never refreshed here; callers gate it with auth.Guard first.
func (f *Factory) ForSession(s *auth.Session) *Client {
	var transport http.RoundTripper = f.base
	if f.limiter != nil {
		transport = &pacedTransport{base: transport, limiter: f.limiter}
	}

	httpClient := &http.Client{
		Timeout: f.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(s.Token()),
			Base:   transport,
		},
	}

	var opts []spotify.ClientOption
	if f.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(f.baseURL))
	}

	return New(spotify.New(httpClient, opts...), f.logger)
}

// pacedTransport waits for the shared limiter before each request.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
