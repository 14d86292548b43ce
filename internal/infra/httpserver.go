package infra

import (
	"context"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// HTTPServer wraps http.Server with start and graceful-shutdown helpers.
//
// The write timeout comes from config and is deliberately long: streamed
// solution responses can take minutes on large papers.
type HTTPServer struct {
	server *http.Server
}

func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
