package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ytuploader/internal/core"
)

type statusResponse struct {
	Scheduler string   `json:"scheduler"`
	Running   bool     `json:"running"`
	NextRunAt *string  `json:"next_run_at,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Times     []string `json:"times"`
	Randomize bool     `json:"randomize"`
	Accounts  int      `json:"accounts"`
}

type accountResponse struct {
	Name          string  `json:"name"`
	Position      int     `json:"position"`
	LastUsedAt    *string `json:"last_used_at,omitempty"`
	UploadsDone   int     `json:"uploads_done"`
	UploadsFailed int     `json:"uploads_failed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()
	times := st.Times
	if times == nil {
		times = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Scheduler: st.Scheduler,
		Running:   st.Running,
		NextRunAt: formatOptional(st.NextRun),
		Timezone:  st.Timezone,
		Times:     times,
		Randomize: st.Randomize,
		Accounts:  st.Accounts,
	})
}

// handleRun starts a cycle in the background and answers 202. With
// ?wait=true it runs the cycle inline and returns the recorded run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if err := s.service.StartRun(core.TriggerAPI); err != nil {
			writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	run, err := s.service.RunNow(r.Context(), core.TriggerAPI)
	if run == nil && err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_pending_rows"})
		return
	}
	if run == nil {
		s.logger.Error("manual run", "err", err)
		writeRunError(w, err)
		return
	}
	// A claimed row always produces a run; its status carries the outcome.
	writeJSON(w, http.StatusOK, runToResponse(run))
}

func writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "conflict", "an upload cycle is already running")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.service.Accounts(r.Context())
	if err != nil {
		s.logger.Error("list accounts", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list accounts")
		return
	}
	res := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		res = append(res, accountResponse{
			Name:          a.Name,
			Position:      a.Position,
			LastUsedAt:    formatOptional(a.LastUsedAt),
			UploadsDone:   a.UploadsDone,
			UploadsFailed: a.UploadsFailed,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
