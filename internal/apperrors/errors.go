// Package apperrors defines the error taxonomy shared by every layer and
// classifies failures coming back from the upstream music service.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

var (
	// ErrUnauthorized is returned when the local credential check fails and
	// the user must authenticate again.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstreamRejected is returned when the upstream service answers with a 4xx status.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrUpstreamUnavailable is returned for 5xx answers, network errors and timeouts.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidInput is returned for malformed or empty requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingCode is returned when the authorization callback carries no code.
	ErrMissingCode = errors.New("missing authorization code")
)

// UpstreamError carries the failed operation and the HTTP status the
// upstream service returned (0 when no response was received).
type UpstreamError struct {
	Op     string
	Status int
	Err    error
	kind   error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Op, e.kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.kind, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the original error.
func (e *UpstreamError) Unwrap() []error {
	return []error{e.kind, e.Err}
}

// Upstream classifies err, returned by an upstream call named op, into
// ErrUpstreamRejected or ErrUpstreamUnavailable. Errors that are already
// classified, and nil, are returned unchanged.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}

	status := StatusOf(err)
	kind := ErrUpstreamUnavailable
	if status >= 400 && status < 500 {
		kind = ErrUpstreamRejected
	}

	return &UpstreamError{Op: op, Status: status, Err: err, kind: kind}
}

// StatusOf extracts the upstream HTTP status from err, or 0 when the error
// did not come from an HTTP response.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}

	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode
	}

	return 0
}

// HTTPStatus maps an error to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamRejected):
		return http.StatusBadGateway
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
