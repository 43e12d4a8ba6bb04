package http

import (
	"errors"
	"net/http"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
)

// userFromRequest returns the caller identity, empty when absent.
func userFromRequest(r *http.Request) string {
	return sanitizeInput(r.Header.Get(UserHeader))
}

// today returns the reference date for stats: the today query parameter
// when it parses, the server clock otherwise.
func (s *Server) today(r *http.Request) core.Date {
	if v := strings.TrimSpace(r.URL.Query().Get("today")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			return d
		}
	}
	return core.DateOf(s.now())
}

// writeError maps ledger errors to responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	var serr *ledger.StorageError
	switch {
	case errors.As(err, &verr):
		FieldError(verr.Field, verr.Error()).Write(w)
	case errors.Is(err, ledger.ErrNoUser):
		UnauthorizedError("missing " + UserHeader + " header").Write(w)
	case errors.As(err, &serr):
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Storage failure",
			log.FieldError, err, log.FieldOperation, serr.Op, log.FieldKey, serr.Key)
		InternalServerError("storage unavailable").Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		InternalServerError("internal error").Write(w)
	}
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
