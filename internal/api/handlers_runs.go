package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ytuploader/internal/core"
	"ytuploader/internal/store"
)

const maxRunsLimit = 200

type runResponse struct {
	ID        string  `json:"id"`
	RowIndex  int     `json:"row_index"`
	Account   string  `json:"account,omitempty"`
	Title     string  `json:"title,omitempty"`
	VideoPath string  `json:"video_path,omitempty"`
	Trigger   string  `json:"trigger"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	VideoURL  *string `json:"video_url,omitempty"`
	Error     *string `json:"error,omitempty"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Account: strings.TrimSpace(q.Get("account")),
		Limit:   parseIntDefault(q.Get("limit"), 20),
		Offset:  parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit < 1 || filter.Limit > maxRunsLimit {
		writeError(w, http.StatusBadRequest, "invalid_input", "limit must be between 1 and 200")
		return
	}
	if filter.Offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "offset must be non-negative")
		return
	}
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		st := core.RunStatus(status)
		switch st {
		case core.RunStatusProcessing, core.RunStatusDone, core.RunStatusFailed, core.RunStatusAbandoned:
			filter.Status = st
		default:
			writeError(w, http.StatusBadRequest, "invalid_input", "status must be processing, done, failed or abandoned")
			return
		}
	}

	runs, err := s.service.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error("list runs", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, runToResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.service.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

func runToResponse(run *core.Run) runResponse {
	return runResponse{
		ID:        run.ID,
		RowIndex:  run.RowIndex,
		Account:   run.Account,
		Title:     run.Title,
		VideoPath: run.VideoPath,
		Trigger:   run.Trigger,
		Status:    string(run.Status),
		Attempts:  run.Attempts,
		VideoURL:  run.VideoURL,
		Error:     run.Error,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:   formatOptional(run.EndedAt),
		CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
	}
}
