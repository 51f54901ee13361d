package swipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/spotify"
)

// draw fills the current card from the read-ahead slot or the pool, then
// starts the next prefetch. Tracks whose details cannot be fetched are
// discarded and the next candidate is tried. Must be called with s.mu held.
func (s *Session) draw(ctx context.Context) error {
	for s.current == nil {
		var (
			id    string
			track *spotify.Track
			err   error
		)

		switch {
		case s.pending != nil:
			p := s.pending
			select {
			case <-p.done:
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
			case <-s.ctx.Done():
				return ErrClosed
			}
			s.pending = nil
			id, track, err = p.id, p.track, p.err
		case len(s.pool) > 0:
			id = s.take()
			track, err = s.fetcher.Track(ctx, id)
		default:
			return nil
		}

		if err == nil && track == nil {
			err = fmt.Errorf("track %s: %w", id, apperrors.ErrUpstreamRejected)
		}
		if err != nil {
			if retryable(ctx, err) {
				s.pool = append(s.pool, id)
				return fmt.Errorf("drawing %s: %w: %w", id, ErrInterrupted, err)
			}
			s.discarded = append(s.discarded, id)
			s.logger.Warn("discarding track", "session", s.id, "track", id, "err", err)
			continue
		}

		shown := *track
		shown.ID = id
		s.current = &shown
	}

	s.prefetch()
	return nil
}

// retryable reports whether a failed fetch says nothing about the track
// itself, so the id must stay in the pool.
func retryable(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		auth.IsUnauthorized(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// prefetch starts fetching the next card into the empty read-ahead slot.
// Must be called with s.mu held.
func (s *Session) prefetch() {
	if s.pending != nil || len(s.pool) == 0 || s.closed {
		return
	}

	p := &pendingDraw{id: s.take(), done: make(chan struct{})}
	s.pending = p

	go func() {
		defer close(p.done)
		p.track, p.err = s.fetcher.Track(s.ctx, p.id)
	}()
}

// take removes a uniformly random id from the pool.
func (s *Session) take() string {
	i := s.rand.IntN(len(s.pool))
	last := len(s.pool) - 1

	id := s.pool[i]
	s.pool[i] = s.pool[last]
	s.pool = s.pool[:last]
	return id
}

// checkCompletion marks the session exhausted once the liked target is met,
// no track is left or Finish was called, and then creates the playlist. Creation runs at most
// once per session unless it fails. Must be called with s.mu held.
func (s *Session) checkCompletion(ctx context.Context) error {
	if !s.finished && !s.targetReached() && (s.current != nil || s.pending != nil || len(s.pool) > 0) {
		return nil
	}
	s.exhausted = true

	if s.created {
		return nil
	}
	if len(s.liked) == 0 {
		s.logger.Info("swipe session finished without likes", "session", s.id, "decided", len(s.history))
		return nil
	}

	s.created = true
	id, err := s.creator.CreatePlaylist(ctx, append([]string(nil), s.liked...))
	if err != nil {
		s.created = false
		return fmt.Errorf("creating playlist: %w", err)
	}

	s.playlistID = id
	s.logger.Info("swipe session finished", "session", s.id, "playlist", id, "liked", len(s.liked), "decided", len(s.history))
	return nil
}
