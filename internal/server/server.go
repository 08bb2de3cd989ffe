// Package server exposes the calibration session and sample matching over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"chemrecon/internal/calibration"
	"chemrecon/internal/config"
	"chemrecon/internal/pipeline"
)

type Server struct {
	cfg       config.Config
	processor *pipeline.RunProcessor
	session   *calibration.Session
	validate  *validator.Validate
	metrics   *Metrics
	logger    *slog.Logger

	mu     sync.RWMutex
	loaded *pipeline.RunResult
}

func New(cfg config.Config, processor *pipeline.RunProcessor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		cfg:       cfg,
		processor: processor,
		session:   calibration.NewSession(logger),
		validate:  v,
		metrics:   NewMetrics(),
		logger:    logger.With("component", "server"),
	}
}

func (s *Server) Session() *calibration.Session { return s.session }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.metrics.Middleware)
		r.Get("/healthz", s.health)

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Post("/runs", s.loadRun)
			r.Get("/matches", s.matches)
			r.Route("/analytes", func(r chi.Router) {
				r.Get("/", s.overview)
				r.Route("/{analyte}", func(r chi.Router) {
					r.Get("/", s.selectAnalyte)
					r.Put("/channel", s.selectChannel)
					r.Get("/channels", s.compareChannels)
					r.Post("/points/{index}/toggle", s.toggle)
				})
			})
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start).String(),
		)
	})
}

// ListenAndServe serves until ctx is done, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
