package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/commercekit/payments/internal/handler"
	"github.com/commercekit/payments/internal/logging"
)

// Recovery turns handler panics into a 500 response. http.ErrAbortHandler
// is re-raised so the server can abort the connection as net/http expects.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				log := logging.FromContext(r.Context())
				log.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
