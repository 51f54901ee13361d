// Package web provides the HTTP API of Spoinder.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is a web session and the authorization artifacts of its user.
type Session struct {
	ID        string
	Auth      *auth.Session
	CreatedAt time.Time
}

// SessionManager defines the interface for session management.
type SessionManager interface {
	Create(ctx context.Context, a *auth.Session) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, a *auth.Session) error
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// SessionStore manages user sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create stores a new session for the given authorization.
func (s *SessionStore) Create(_ context.Context, a *auth.Session) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		Auth:      a.Clone(),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return copySession(session), nil
}

// Get retrieves a session by ID. The result is a copy.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil
	}

	if s.now().Sub(session.CreatedAt) > sessionTTL {
		return nil
	}

	return copySession(session)
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// UpdateToken stores a refreshed access token for a session.
func (s *SessionStore) UpdateToken(_ context.Context, id string, a *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return db.ErrNotFound
	}
	session.Auth.AccessToken = a.AccessToken
	session.Auth.TokenExpiry = a.TokenExpiry
	return nil
}

// GetFromRequest extracts the session from the request cookie.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	return fromRequest(s, r)
}

// SetCookie sets the session cookie on the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// DBSessionStore manages user sessions in PostgreSQL.
type DBSessionStore struct {
	sessions *db.SessionRepository
	logger   *log.Logger
	now      func() time.Time
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(database *db.DB, logger *log.Logger) *DBSessionStore {
	return &DBSessionStore{sessions: database.Sessions(), logger: logger, now: time.Now}
}

// Create stores a new session in the database.
func (s *DBSessionStore) Create(ctx context.Context, a *auth.Session) (*Session, error) {
	now := s.now()
	row := &db.Session{
		ID:           uuid.NewString(),
		Code:         a.Code,
		CodeExpiry:   a.CodeExpiry,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenExpiry:  a.TokenExpiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}

	if err := s.sessions.Create(ctx, row); err != nil {
		return nil, err
	}

	return &Session{ID: row.ID, Auth: a.Clone(), CreatedAt: now}, nil
}

// Get retrieves a session by ID from the database.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	row, err := s.sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("loading session", "err", err)
		}
		return nil
	}

	return &Session{
		ID: row.ID,
		Auth: &auth.Session{
			Code:         row.Code,
			CodeExpiry:   row.CodeExpiry,
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			TokenExpiry:  row.TokenExpiry,
		},
		CreatedAt: row.CreatedAt,
	}
}

// Delete removes a session from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Error("deleting session", "err", err)
	}
}

// UpdateToken stores a refreshed access token in the database.
func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, a *auth.Session) error {
	return s.sessions.UpdateToken(ctx, id, a.AccessToken, a.TokenExpiry)
}

// GetFromRequest extracts the session from the request cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	return fromRequest(s, r)
}

// SetCookie sets the session cookie on the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

func fromRequest(m SessionManager, r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return m.Get(r.Context(), cookie.Value)
}

func copySession(s *Session) *Session {
	c := *s
	c.Auth = s.Auth.Clone()
	return &c
}

// setCookie sets the session cookie on the response.
func setCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// clearCookie removes the session cookie from the response.
func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Ensure both stores implement SessionManager.
var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
