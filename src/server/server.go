package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"setupingest/src/audit"
	"setupingest/src/auth"
	"setupingest/src/handler"
	"setupingest/src/ingest"
)

// Routes are the components the HTTP API serves.
type Routes struct {
	Components *ingest.Components
	Audit      *audit.Service
	Auth       auth.Config
}

func NewRouter(routes Routes) http.Handler {
	c := routes.Components
	loc := c.Pipeline.Location()

	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperator(routes.Auth))

		r.Handle("/ws/events", c.Hub)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/messages", handler.IngestMessageHandler(c.Messages, c.Pipeline))
			r.Get("/messages/failed", handler.FailedMessagesHandler(c.ParseLogs, loc))
			r.Get("/setups", handler.SearchSetupsHandler(c.Setups))
			r.Get("/audit", handler.AuditHandler(routes.Audit, loc))
			r.Get("/exceptions", handler.ExceptionsHandler(c.Exceptions))
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request served")
	})
}

// StartServer serves h until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, config *Config, h http.Handler) error {
	// Server setup
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
