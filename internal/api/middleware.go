package api

import (
	"net/http"
	"strconv"
	"time"

	"agenda/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// loggingMiddleware logs one line per request and feeds the HTTP metrics,
// labelled by the matched route pattern.
func loggingMiddleware(logger *zerolog.Logger) func(http.Handler) http.Handler {
	base := logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, info := withRequestInfo(r.Context())
			r = r.WithContext(ctx)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			dur := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			metrics.ObserveHTTP(route, strconv.Itoa(recorder.status), dur)

			event := base.Info()
			if recorder.status >= http.StatusInternalServerError {
				event = base.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Str("remote", remoteHost(r)).
				Str("client", info.client).
				Int("status", recorder.status).
				Dur("duration", dur).
				Msg("http request")
		})
	}
}

// publicRateLimit throttles anonymous callers per remote address.
func publicRateLimit(limiter *keyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(remoteHost(r)) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
