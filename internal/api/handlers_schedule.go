package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ytuploader/internal/control"
)

type schedulePreviewRequest struct {
	Times     []string `json:"times,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Randomize bool     `json:"randomize,omitempty"`
	Now       string   `json:"now,omitempty"`
	Days      int      `json:"days,omitempty"`
}

type schedulePreviewResponse struct {
	Valid     bool     `json:"valid"`
	Timezone  string   `json:"timezone,omitempty"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "invalid JSON payload"})
			return
		}
	}

	preview := control.PreviewRequest{
		Times:     req.Times,
		Timezone:  strings.TrimSpace(req.Timezone),
		Randomize: req.Randomize,
		Days:      req.Days,
	}
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "now must be RFC3339"})
			return
		}
		preview.From = parsed
	}

	slots, spec, err := s.service.PreviewSchedule(preview)
	if err != nil {
		writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: false, Message: err.Error()})
		return
	}
	formatted := make([]string, 0, len(slots))
	for _, t := range slots {
		formatted = append(formatted, t.In(spec.Location).Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: true, Timezone: spec.Location.String(), NextTimes: formatted})
}
