// Package render writes the JSON bodies of the API, including the error
// bodies derived from the apperrors taxonomy.
package render

import (
	"encoding/json"
	"net/http"

	"github.com/justestif/spoinder/internal/apperrors"
)

// Problem kinds reported in the "error" field.
const (
	KindUnauthorized     = "unauthorized"
	KindInvalidInput     = "invalid_input"
	KindInvalidJSON      = "invalid_json"
	KindValidation       = "validation_failed"
	KindBadRequest       = "bad_request"
	KindNotFound         = "not_found"
	KindUpstreamRejected = "upstream_rejected"
	KindUpstreamDown     = "upstream_unavailable"
	KindInternal         = "internal_error"
)

// Problem is the body of every non-2xx response.
type Problem struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Login   string            `json:"login,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON writes v with status 200.
func JSON(w http.ResponseWriter, v any) {
	Status(w, http.StatusOK, v)
}

// Status writes v with the given status code.
func Status(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// Fail writes a Problem with a plain message. 404 is reported as not_found,
// anything else as bad_request.
func Fail(w http.ResponseWriter, code int, message string) {
	kind := KindBadRequest
	if code == http.StatusNotFound {
		kind = KindNotFound
	}
	Status(w, code, Problem{Error: kind, Message: message})
}

// Unauthorized tells the caller to authenticate again at loginPath.
func Unauthorized(w http.ResponseWriter, loginPath string) {
	Status(w, http.StatusUnauthorized, Problem{Error: KindUnauthorized, Login: loginPath})
}

// ProblemFor maps err to its status code and body. Messages of internal
// errors are replaced by the status text.
func ProblemFor(err error, loginPath string) (Problem, int) {
	code := apperrors.HTTPStatus(err)

	switch code {
	case http.StatusUnauthorized:
		return Problem{Error: KindUnauthorized, Login: loginPath}, code
	case http.StatusBadRequest:
		return Problem{Error: KindInvalidInput, Message: err.Error()}, code
	case http.StatusBadGateway:
		return Problem{Error: KindUpstreamRejected, Message: err.Error()}, code
	case http.StatusServiceUnavailable:
		return Problem{Error: KindUpstreamDown, Message: err.Error()}, code
	default:
		return Problem{Error: KindInternal, Message: http.StatusText(code)}, code
	}
}

// Error writes the Problem for err.
func Error(w http.ResponseWriter, err error, loginPath string) {
	p, code := ProblemFor(err, loginPath)
	Status(w, code, p)
}
