// Package api exposes run observability over HTTP while a harvest is
// active: Prometheus metrics, dependency health, live progress and the last
// recorded run.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/priceharvest/internal/harvest"
	"github.com/user/priceharvest/internal/monitoring"
	"github.com/user/priceharvest/internal/storage"
)

// Server holds the dependencies for the HTTP status server. The postgres
// and redis stores may be nil when not configured; their health reads
// "disabled".
type Server struct {
	port       string
	router     http.Handler
	httpServer *http.Server
	pgStore    *storage.PostgresStore
	redisStore *storage.RedisStore
	metrics    *monitoring.Metrics
	progress   func() harvest.Progress
	logger     *zap.Logger
}

func NewServer(port string, ps *storage.PostgresStore, rs *storage.RedisStore, m *monitoring.Metrics, progress func() harvest.Progress, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		port:       port,
		pgStore:    ps,
		redisStore: rs,
		metrics:    m,
		progress:   progress,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
