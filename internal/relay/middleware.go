package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/remote"
)

func SecHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		next.ServeHTTP(w, r)
	})
}

// RequestLogger attaches a request-scoped logger, tagged with the caller's
// X-Request-ID or a fresh one, and logs every completed request.
func RequestLogger(baseLogger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(remote.RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(remote.RequestIDHeader, id)

			requestLogger := baseLogger.With(
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", id,
			)

			ctx := logging.ContextWithLogger(r.Context(), requestLogger)
			r = r.WithContext(ctx)

			lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					requestLogger.Error("panic recovered",
						"err", rec,
						"type", fmt.Sprintf("%T", rec),
						"stack", string(debug.Stack()),
					)
					lrw.WriteHeader(http.StatusInternalServerError)
				}
				level := slog.LevelInfo
				switch {
				case lrw.status >= 500:
					level = slog.LevelError
				case lrw.status >= 400:
					level = slog.LevelWarn
				}
				requestLogger.Log(ctx, level, "request completed",
					"status", lrw.status,
					"duration_ms", time.Since(start).Milliseconds(),
					"bytes", lrw.length,
				)
			}()

			next.ServeHTTP(lrw, r)
		})
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	length int
	wrote  bool
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	if !lrw.wrote {
		lrw.ResponseWriter.WriteHeader(status)
		lrw.wrote = true
	}
	lrw.status = status
}

func (lrw *loggingResponseWriter) Write(p []byte) (int, error) {
	if !lrw.wrote {
		lrw.WriteHeader(http.StatusOK)
	}
	n, err := lrw.ResponseWriter.Write(p)
	lrw.length += n
	return n, err
}
