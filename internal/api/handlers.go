package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskverify/internal/domain"
)

type clickReq struct {
	UserID     string `json:"user_id"`
	CampaignID string `json:"campaign_id"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if req.UserID == "" || req.CampaignID == "" {
		writeError(w, http.StatusBadRequest, "user_id and campaign_id are required")
		return
	}

	comp, err := s.recorder.RecordClick(r.Context(), chi.URLParam(r, "taskID"), req.UserID, req.CampaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"completion_id": comp.ID,
		"status":        comp.Status,
		"clicked_at":    comp.ClickedAt,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	res, err := s.claimer.Claim(r.Context(), chi.URLParam(r, "completionID"))
	if err != nil {
		if te, ok := domain.AsTooEarly(err); ok {
			writeJSON(w, http.StatusTooEarly, map[string]any{
				"error":               "too_early",
				"retry_after_seconds": math.Ceil(te.Remaining.Seconds()),
			})
			return
		}
		if errors.Is(err, domain.ErrRateBudgetExceeded) {
			// deferred, not failed: the scheduler picks the row up later
			writeJSON(w, http.StatusAccepted, map[string]any{
				"accepted": false,
				"status":   domain.StatusPending,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	comp, err := s.exec.ManualVerify(r.Context(), chi.URLParam(r, "completionID"))
	if err != nil {
		if errors.Is(err, domain.ErrRateBudgetExceeded) {
			writeJSON(w, http.StatusAccepted, map[string]any{"status": domain.StatusPending})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *Server) handleProcessDue(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSecret != "" && r.Header.Get("X-Scheduler-Secret") != s.schedulerSecret {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	stats, err := s.processor.ProcessDue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// userTaskView is the read-only projection the campaign UI renders:
// status, spins, and countdown state without client-side business logic.
type userTaskView struct {
	TaskID             string        `json:"task_id"`
	Kind               string        `json:"kind"`
	TargetURL          string        `json:"target_url,omitempty"`
	SpinsReward        int           `json:"spins_reward"`
	Status             domain.Status `json:"status"`
	SpinsAwarded       int           `json:"spins_awarded"`
	ClickedAt          *time.Time    `json:"clicked_at,omitempty"`
	ClaimableInSeconds float64       `json:"claimable_in_seconds,omitempty"`
}

func (s *Server) handleUserTasks(w http.ResponseWriter, r *http.Request) {
	campaignID := r.URL.Query().Get("campaign_id")
	if campaignID == "" {
		writeError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}
	userID := chi.URLParam(r, "userID")

	tasks, err := s.tasks.ListCampaignTasks(r.Context(), campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	comps, err := s.store.ListByUser(r.Context(), userID, campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	byTask := make(map[string]domain.Completion, len(comps))
	for _, c := range comps {
		byTask[c.TaskID] = c
	}

	now := time.Now()
	views := make([]userTaskView, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsActive {
			continue
		}
		v := userTaskView{
			TaskID:      t.ID,
			Kind:        t.Kind,
			TargetURL:   t.TargetURL,
			SpinsReward: t.SpinsReward,
			Status:      domain.StatusPending,
		}
		if c, ok := byTask[t.ID]; ok {
			v.Status = c.Status
			v.SpinsAwarded = c.SpinsAwarded
			v.ClickedAt = c.ClickedAt
			if t.Action() == domain.ActionVisit && c.ClickedAt != nil && !c.Status.Terminal() {
				if remaining := s.dwell - now.Sub(*c.ClickedAt); remaining > 0 {
					v.ClaimableInSeconds = math.Ceil(remaining.Seconds())
				}
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP. Rejections stay
// silent about why a verification failed; they only expose state.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrCompletionNotFound),
		errors.Is(err, domain.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, domain.ErrTaskInactive),
		errors.Is(err, domain.ErrWrongCampaign):
		writeError(w, http.StatusConflict, "invalid_state")
	case errors.Is(err, domain.ErrMissingClickTimestamp):
		writeError(w, http.StatusBadRequest, "missing_click")
	case errors.Is(err, domain.ErrUnsupportedActionKind):
		writeError(w, http.StatusUnprocessableEntity, "unsupported_action_kind")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
