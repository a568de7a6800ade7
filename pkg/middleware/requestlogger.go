package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/authservice/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// whatever is already known: correlation id, user id and trace/span ids.
// Mount it after RequestLogging and Tracing. Guards that authenticate the
// caller later call Enrich to add the user id.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Enrich records userID in ctx and replaces the request-scoped logger with one
// carrying it.
func Enrich(r *http.Request, userID string) *http.Request {
	ctx := logger.WithUserID(r.Context(), userID)
	l := logger.FromContext(ctx).With(slog.String("user_id", userID))
	return r.WithContext(logger.NewContext(ctx, l))
}
