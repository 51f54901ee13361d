package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// Session holds the short-lived authorization artifacts of one user session.
//
// A code is usable only while now < CodeExpiry; an access token only while
// now < TokenExpiry. The two windows are independent.
type Session struct {
	Code         string
	CodeExpiry   time.Time
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// IsAuthorizationValid reports whether the authorization code is still fresh.
// A nil or incomplete session is never valid.
func (s *Session) IsAuthorizationValid(now time.Time) bool {
	if s == nil || s.Code == "" || s.CodeExpiry.IsZero() {
		return false
	}
	return now.Before(s.CodeExpiry)
}

// IsTokenValid reports whether the access token can still be sent upstream.
func (s *Session) IsTokenValid(now time.Time) bool {
	if s == nil || s.AccessToken == "" || s.TokenExpiry.IsZero() {
		return false
	}
	return now.Before(s.TokenExpiry)
}

// Token returns the access token in the form the oauth2 transport expects.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.TokenExpiry,
	}
}

// Clone returns a copy that can be mutated without affecting s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
