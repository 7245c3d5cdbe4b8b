package middleware

import (
	"errors"
	"net/http"

	"github.com/vidstream/backend/internal/apperr"
)

// ErrRateLimited is reported when a client exceeds its request budget.
var ErrRateLimited = errors.New("too many requests")

// ErrorResponder writes err to the client. Middleware rejects requests through it so the
// response envelope stays owned by the handlers package.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	case apperr.Is(err, apperr.KindUnavailable):
		status = http.StatusServiceUnavailable
	case !apperr.Is(err, apperr.KindInvalidCredential):
		status = http.StatusInternalServerError
	}
	http.Error(w, http.StatusText(status), status)
}

func responder(fail ErrorResponder) ErrorResponder {
	if fail == nil {
		return plainError
	}
	return fail
}
