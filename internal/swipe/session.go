// Package swipe implements the interactive like/dislike session that turns
// a pool of candidate tracks into a new playlist.
//
// Tracks are drawn uniformly at random without replacement. While a card is
// shown, the next one is fetched in the background into a single slot, so at
// most one fetch is ever outstanding.
package swipe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/spotify"
)

var (
	// ErrNoCard is returned by Decide when no track is shown.
	ErrNoCard = errors.New("no track is shown")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("swipe session closed")

	// ErrInterrupted wraps failures that left the session without a shown
	// card while tracks remain. Start resumes it.
	ErrInterrupted = errors.New("draw interrupted")
)

// State is the position of a Session in its lifecycle.
type State string

const (
	StateAwaitingDraw State = "awaiting_draw"
	StateShowing      State = "showing"
	StateExhausted    State = "exhausted"
	StateClosed       State = "closed"
)

// Decision is the verdict on one track.
type Decision string

const (
	Like    Decision = "like"
	Dislike Decision = "dislike"
)

// Fetcher loads the details of a track.
type Fetcher interface {
	Track(ctx context.Context, trackID string) (*spotify.Track, error)
}

// Creator turns the liked tracks into a playlist and returns its id.
type Creator interface {
	CreatePlaylist(ctx context.Context, trackIDs []string) (string, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, trackIDs []string) (string, error)

// CreatePlaylist calls f.
func (f CreatorFunc) CreatePlaylist(ctx context.Context, trackIDs []string) (string, error) {
	return f(ctx, trackIDs)
}

// Rand is the source of uniform indices. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type entry struct {
	id       string
	decision Decision
}

// pendingDraw is the read-ahead slot. track and err are written by the
// fetching goroutine and may be read only after done is closed.
type pendingDraw struct {
	id    string
	done  chan struct{}
	track *spotify.Track
	err   error
}

// Session is one swipe run. All methods are safe for concurrent use; they
// are serialized internally.
type Session struct {
	id      string
	fetcher Fetcher
	creator Creator
	rand    Rand
	logger  *log.Logger

	// ctx scopes background fetches; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	original  int
	target    int
	pool      []string
	pending   *pendingDraw
	current   *spotify.Track
	history   []entry
	liked     []string
	discarded []string

	exhausted  bool
	finished   bool
	created    bool
	playlistID string
	closed     bool
}

// Option configures a Session.
type Option func(*Session)

// WithRand sets the index source used for draws.
func WithRand(r Rand) Option {
	return func(s *Session) {
		s.rand = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates a Session over the distinct ids of pool. A target of zero or
// less means the session runs until the pool is exhausted.
// No track is drawn until Start is called.
func New(pool []string, target int, fetcher Fetcher, creator Creator, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		fetcher: fetcher,
		creator: creator,
		rand:    globalRand{},
		logger:  log.Default(),
		ctx:     ctx,
		cancel:  cancel,
		target:  target,
		pool:    dedup(pool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.original = len(s.pool)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// Start shows the first card. It also resumes a session whose draw was
// interrupted. When a card is already shown it does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.current != nil || s.exhausted {
		return nil
	}

	if err := s.draw(ctx); err != nil {
		return err
	}
	return s.checkCompletion(ctx)
}

// Decide records a verdict on the shown card and draws the next one.
func (s *Session) Decide(ctx context.Context, d Decision) error {
	if d != Like && d != Dislike {
		return fmt.Errorf("decision %q: %w", d, apperrors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.current == nil {
		return fmt.Errorf("%w: %w", ErrNoCard, apperrors.ErrInvalidInput)
	}

	id := s.current.ID
	if d == Like {
		s.liked = append(s.liked, id)
	}
	s.history = append(s.history, entry{id: id, decision: d})
	s.current = nil

	s.logger.Debug("decided", "session", s.id, "track", id, "decision", d, "liked", len(s.liked))

	if s.targetReached() {
		return s.checkCompletion(ctx)
	}
	if err := s.draw(ctx); err != nil {
		return err
	}
	return s.checkCompletion(ctx)
}

// Undo reverts the most recent decision and shows that track again. The
// card shown before the undo goes back into the pool. With an empty history
// Undo does nothing. If the track cannot be fetched the session is unchanged.
func (s *Session) Undo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(s.history) == 0 {
		return nil
	}

	last := s.history[len(s.history)-1]
	track, err := s.fetcher.Track(ctx, last.id)
	if err != nil {
		return fmt.Errorf("refetching %s: %w", last.id, err)
	}

	s.history = s.history[:len(s.history)-1]
	if last.decision == Like {
		s.unlike(last.id)
	}
	if s.current != nil {
		s.pool = append(s.pool, s.current.ID)
	}
	s.current = track
	s.exhausted = false

	s.logger.Debug("undone", "session", s.id, "track", last.id, "decision", last.decision)
	return nil
}

// Finish ends the session with the tracks liked so far, even if cards
// remain, and creates the playlist. Calling it again retries a failed
// creation; once a playlist exists it does nothing.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.finished = true
	return s.checkCompletion(ctx)
}

// Close tears the session down. An outstanding prefetch is abandoned and its
// result discarded.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	ID         string         `json:"id"`
	State      State          `json:"state"`
	Current    *spotify.Track `json:"current,omitempty"`
	Remaining  int            `json:"remaining"`
	Decided    int            `json:"decided"`
	Liked      []string       `json:"liked"`
	Target     int            `json:"target"`
	PlaylistID string         `json:"playlistId,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		State:      s.state(),
		Remaining:  len(s.pool),
		Decided:    len(s.history),
		Liked:      append([]string{}, s.liked...),
		Target:     s.target,
		PlaylistID: s.playlistID,
	}
	if s.pending != nil {
		snap.Remaining++
	}
	if s.current != nil {
		c := *s.current
		snap.Current = &c
	}
	return snap
}

// Conservation returns the number of tracks the session accounts for (pool,
// read-ahead slot, shown card, history and discarded) next to the size of
// the pool it started with. The two are always equal.
func (s *Session) Conservation() (accounted, original int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounted = len(s.pool) + len(s.history) + len(s.discarded)
	if s.pending != nil {
		accounted++
	}
	if s.current != nil {
		accounted++
	}
	return accounted, s.original
}

func (s *Session) state() State {
	switch {
	case s.closed:
		return StateClosed
	case s.exhausted:
		return StateExhausted
	case s.current != nil:
		return StateShowing
	default:
		return StateAwaitingDraw
	}
}

func (s *Session) targetReached() bool {
	return s.target > 0 && len(s.liked) >= s.target
}

// unlike removes the most recent occurrence of id from the liked list.
func (s *Session) unlike(id string) {
	for i := len(s.liked) - 1; i >= 0; i-- {
		if s.liked[i] == id {
			s.liked = append(s.liked[:i], s.liked[i+1:]...)
			return
		}
	}
}

func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
