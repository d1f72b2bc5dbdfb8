package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type accessEntryKey struct{}

// accessEntry collects request facts that only inner handlers learn, such as
// the authenticated operator, for the access log line.
type accessEntry struct {
	operatorID string
}

func noteOperator(ctx context.Context, operatorID string) {
	if e, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok {
		e.operatorID = operatorID
	}
}

// StructuredLogger writes one line per request once the handler chain has
// finished, tagged with the matched route and the acting operator.
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := &accessEntry{}
			r = r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				route := ""
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					route = rctx.RoutePattern()
				}
				logger.InfoContext(r.Context(), "Served request",
					"method", r.Method,
					"path", r.URL.Path,
					"route", route,
					"operator_id", entry.operatorID,
					"status", ww.Status(),
					"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
					"bytes_written", ww.BytesWritten(),
					"remote_addr", r.RemoteAddr,
					"user_agent", r.UserAgent(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
