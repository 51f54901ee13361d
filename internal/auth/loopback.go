package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const callbackTimeout = 2 * time.Minute

var (
	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// LoginLoopback runs the authorization-code flow for a terminal user: it
// serves the redirect URI's path on a local listener, prints the consent URL
// to out and waits for the single callback.
func (f *Flow) LoginLoopback(ctx context.Context, out io.Writer) (*Session, error) {
	redirect, err := url.Parse(f.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URI: %w", err)
	}

	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", redirect.Host, err)
	}

	sessCh := make(chan *Session, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		f.handleLoopbackCallback(w, r, state, sessCh, errCh)
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintln(out, "\nTo authenticate, open this URL in your browser:")
	fmt.Fprintln(out, f.AuthURL(state))
	fmt.Fprintln(out, "\nWaiting for authentication...")

	select {
	case sess := <-sessCh:
		return sess, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(callbackTimeout):
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Flow) handleLoopbackCallback(w http.ResponseWriter, r *http.Request, expectedState string, sessCh chan<- *Session, errCh chan<- error) {
	q := r.URL.Query()

	if q.Get("state") != expectedState {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		trySend(errCh, ErrStateMismatch)
		return
	}

	if errMsg := q.Get("error"); errMsg != "" {
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		trySend(errCh, fmt.Errorf("spotify auth error: %s", errMsg))
		return
	}

	sess, err := f.Complete(r.Context(), q.Get("code"))
	if err != nil {
		http.Error(w, "Failed to get token", http.StatusBadGateway)
		trySend(errCh, fmt.Errorf("completing authorization: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Authentication successful. You can close this window and return to the terminal.")

	select {
	case sessCh <- sess:
	default:
	}
}

func trySend(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
