package interview

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	interviewService "github.com/marsdhp/sme-interview/backend/internal/service/interview"
	"github.com/marsdhp/sme-interview/backend/pkg/utils"
)

// Handler exposes the turn loop and the per-session read views.
type Handler struct {
	engine *interviewService.Engine
}

// New creates the interview handler.
func New(engine *interviewService.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the interview endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/interview", h.handleTurn)
	r.Post("/interview/retry", h.handleRetry)
	r.Get("/transcript/{sessionID}", h.handleTranscript)
	r.Get("/extraction/{sessionID}", h.handleExtraction)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.ProcessTurn(r.Context(), req.SessionID, req.Text)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.RetryLastTurn(r.Context(), req.SessionID)
	if err != nil {
		respondTurnError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interviewService.ErrTextRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, interviewService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interviewService.ErrSessionClosed):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, interviewService.ErrNoPendingTurn):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, interviewService.ErrProvider):
		logrus.WithError(err).Error("interview provider failure")
		utils.RespondError(w, http.StatusBadGateway, "the interviewer is unavailable, please retry")
	default:
		logrus.WithError(err).Error("interview turn failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to process turn")
	}
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	transcript, err := h.engine.Transcript(r.Context(), id)
	if err != nil {
		if errors.Is(err, interviewService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		logrus.WithError(err).Error("load transcript failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcript)
}

func (h *Handler) handleExtraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	knowledge, err := h.engine.Knowledge(r.Context(), id)
	if err != nil {
		if errors.Is(err, interviewService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		logrus.WithError(err).Error("load extraction failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load extraction")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"knowledge":  knowledge,
	})
}
