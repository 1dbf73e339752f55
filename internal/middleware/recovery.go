package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery logs panics and answers with handler. http.ErrAbortHandler is
// passed on to net/http, and nothing is written once the connection was
// hijacked by a websocket upgrade.
func Recovery(logger *zap.Logger, handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(err)
				}
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.Stack("stack"),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("upgraded", tracked.hijacked),
				)
				if !tracked.hijacked {
					handler(w, r, err)
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

// DefaultPanicHandler answers 500 in plain text
func DefaultPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
