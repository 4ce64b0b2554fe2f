package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// Server is the read-side API over the artifact bucket. It never writes:
// listing, grouping, and presigned download URLs only.
type Server struct {
	lister domain.ObjectLister
	cfg    config.DataAPIConfig
	logger *slog.Logger
}

func NewServer(lister domain.ObjectLister, cfg config.DataAPIConfig, logger *slog.Logger) *Server {
	return &Server{lister: lister, cfg: cfg, logger: logger}
}

// Handler builds the routed, middleware-wrapped handler. ctx bounds the
// rate limiter's cleanup goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /files/list", s.handleFilesList)
	mux.HandleFunc("GET /files/ids", s.handleFilesIDs)
	mux.HandleFunc("GET /files/download-url", s.handleDownloadURL)
	mux.HandleFunc("GET /messages/{id}", s.handleMessage)

	var h http.Handler = mux
	h = APIKey(s.cfg.APIKey, s.logger)(h)
	h = RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.Burst)(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("data api listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
