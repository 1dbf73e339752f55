package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mcoot/userdata/internal/api/apierr"
	"github.com/mcoot/userdata/internal/middleware"
)

// Recovery creates panic recovery middleware for the API
// Returns JSON error responses on panic
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler)
}

// Logging re-exports the shared request logger
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger)
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
