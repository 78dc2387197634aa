package rest

import (
	"encoding/json"
	"net/http"
	"time"

	flowkit "github.com/linkup-social/flowkit"
)

type eventRequest struct {
	Type       string         `json:"type"`
	SubjectID  string         `json:"subjectId"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// HandlePublishEvent accepts a domain event and hands it to the engine.
// Publication is fire-and-forget: the response is 202 regardless of whether
// any trigger matched, and workflow failures never surface here.
func (s *Server) HandlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	defer r.Body.Close()

	if req.Type == "" {
		respondWithError(w, http.StatusBadRequest, "event type is required")
		return
	}

	s.engine.Publish(r.Context(), flowkit.Event{
		Type:       flowkit.EventType(req.Type),
		SubjectID:  req.SubjectID,
		Payload:    req.Payload,
		OccurredAt: req.OccurredAt,
	})
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
