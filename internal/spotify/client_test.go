package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/logger"
)

func TestFactoryForSession(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		switch r.URL.Path {
		case "/me/playlists":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"id":"p1","name":"Road Trip","tracks":{"total":3}}],"next":""}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	factory := NewFactory(
		WithBaseURL(server.URL+"/"),
		WithTimeout(time.Second),
		WithRateLimit(100),
		WithLogger(logger.NewNop()),
	)
	sess := &auth.Session{AccessToken: "access-1", TokenExpiry: time.Now().Add(time.Hour)}

	got, err := factory.ForSession(sess).ListPlaylists(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Playlist{{ID: "p1", Title: "Road Trip", TrackCount: 3}}, got)
	require.Equal(t, "Bearer access-1", gotAuth)
}

func TestFactoryForSession_UpstreamStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"client error", http.StatusForbidden, apperrors.ErrUpstreamRejected},
		{"server error", http.StatusBadGateway, apperrors.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error":{"status":%d,"message":"nope"}}`, tt.status)
			}))
			defer server.Close()

			factory := NewFactory(WithBaseURL(server.URL+"/"), WithLogger(logger.NewNop()))
			sess := &auth.Session{AccessToken: "access-1", TokenExpiry: time.Now().Add(time.Hour)}

			_, err := factory.ForSession(sess).ListPlaylists(context.Background())
			require.ErrorIs(t, err, tt.want)
		})
	}
}
