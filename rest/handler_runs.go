package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	flowkit "github.com/linkup-social/flowkit"
	"github.com/linkup-social/flowkit/internal/logger"
)

func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.engine.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, flowkit.ErrRunNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		logger.Error("error getting run", zap.String("id", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting run")
		return
	}
	respondWithJSON(w, http.StatusOK, run)
}

func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := flowkit.RunListOptions{
		WorkflowName: r.URL.Query().Get("workflow"),
		Status:       flowkit.Status(r.URL.Query().Get("status")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}

	runs, err := s.engine.ListRuns(r.Context(), opts)
	if err != nil {
		logger.Error("error listing runs", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing runs")
		return
	}
	respondWithJSON(w, http.StatusOK, runs)
}

func (s *Server) HandleGetRunSteps(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	records, err := s.engine.StepHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, flowkit.ErrRunNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		logger.Error("error getting step history", zap.String("id", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting step history")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (s *Server) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cancelled, err := s.engine.CancelRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, flowkit.ErrRunNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		logger.Error("error cancelling run", zap.String("id", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error cancelling run")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
