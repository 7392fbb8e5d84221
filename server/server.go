// Package server exposes the HTTP API the dock frontend consumes: health,
// status, metrics, the merged catalog and dock groups, pins, selection
// toggles, and the combined chat view. CORS is permissive in development and
// correlation IDs are injected into request contexts for consistent logging.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/stream-dock/telemetry"
)

// NewMux returns the HTTP handler with all routes. The provided context
// bounds the rate limiter's cleanup goroutine.
func NewMux(ctx context.Context, opts Options) http.Handler {
	corsCfg := loadCORSConfig()
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	handlers := NewHandlers(opts)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)

	mux.HandleFunc("/catalog", handlers.HandleCatalog)
	mux.HandleFunc("/dock", handlers.HandleDock)
	mux.HandleFunc("/pins", handlers.HandlePins)
	mux.HandleFunc("/selection/toggle", handlers.HandleSelectionToggle)

	mux.HandleFunc("/chat/messages", handlers.HandleChatMessages)
	mux.HandleFunc("/chat/settings", handlers.HandleChatSettings)

	mux.HandleFunc("/streamers", handlers.HandleStreamers)

	// Mutating endpoints get rate limiting; the streamer roster additionally
	// requires the admin token.
	selective := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/streamers" && r.Method != http.MethodGet:
			adminAuth(rateLimitMiddleware(mux, limiter), opts.AdminToken).ServeHTTP(w, r)
		case r.Method != http.MethodGet && mutatingPath(r.URL.Path):
			rateLimitMiddleware(mux, limiter).ServeHTTP(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	})

	// Correlation ID injection plus a tracing span around every request.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selective.ServeHTTP(rec, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
		if rec.statusCode >= 400 {
			telemetry.RecordError(span, fmt.Errorf("HTTP %d", rec.statusCode))
		} else {
			telemetry.SetSpanSuccess(span)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

func mutatingPath(path string) bool {
	switch path {
	case "/pins", "/selection/toggle", "/chat/settings":
		return true
	}
	return false
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, opts Options, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
