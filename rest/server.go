package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	flowkit "github.com/linkup-social/flowkit"
	"github.com/linkup-social/flowkit/internal/logger"
)

// Server exposes the event intake and the run inspection surface over HTTP.
type Server struct {
	http.Server
	Port   int
	engine flowkit.Engine
}

func NewServer(httpPort int, engine flowkit.Engine) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		engine: engine,
		Port:   httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/events", s.HandlePublishEvent).Methods(http.MethodPost)

	router.HandleFunc("/api/runs", s.HandleListRuns).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}", s.HandleGetRun).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/steps", s.HandleGetRunSteps).Methods(http.MethodGet)
	router.HandleFunc("/api/runs/{id}/cancel", s.HandleCancelRun).Methods(http.MethodPost)

	router.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.HandleReady).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
