package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)
	healthy := true

	if s.pgStore == nil {
		healthStatus["postgres"] = "disabled"
	} else if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if s.redisStore == nil {
		healthStatus["redis"] = "disabled"
	} else if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		healthy = false
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	s.respondWithJSON(w, code, healthStatus)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		s.respondWithError(w, http.StatusNotFound, "No harvest in progress")
		return
	}
	s.respondWithJSON(w, http.StatusOK, s.progress())
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.redisStore == nil {
		s.respondWithError(w, http.StatusNotFound, "Run bookkeeping is not configured")
		return
	}

	summary, err := s.redisStore.LastRun(r.Context())
	if err != nil {
		s.logger.Error("failed to read last run", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve last run")
		return
	}
	if summary == nil {
		s.respondWithError(w, http.StatusNotFound, "No run recorded yet")
		return
	}
	s.respondWithJSON(w, http.StatusOK, summary)
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
