package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/marsdhp/sme-interview/backend/internal/middleware"
	"github.com/marsdhp/sme-interview/backend/internal/model/interview"
	interviewService "github.com/marsdhp/sme-interview/backend/internal/service/interview"
	"github.com/marsdhp/sme-interview/backend/internal/store"
	"github.com/marsdhp/sme-interview/backend/internal/token"
	"github.com/marsdhp/sme-interview/backend/pkg/utils"
)

// Handler exposes session lifecycle and listing endpoints.
type Handler struct {
	engine *interviewService.Engine
	store  store.Store
	tokens *token.Store
}

// New creates the session handler. tokens may be nil when auth is disabled.
func New(engine *interviewService.Engine, st store.Store, tokens *token.Store) *Handler {
	return &Handler{engine: engine, store: st, tokens: tokens}
}

// RegisterRoutes mounts the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleStart)
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Post("/sessions/{sessionID}/end", h.handleEnd)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req interviewService.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.engine.StartSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, interviewService.ErrExpertNameRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logrus.WithError(err).Error("start session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	if h.tokens != nil {
		if name := middleware.TokenName(r.Context()); name != "" {
			if err := h.tokens.IncrementSessions(name); err != nil {
				logrus.WithError(err).Warn("record token session count failed")
			}
		}
	}

	utils.RespondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := interview.Status(r.URL.Query().Get("status"))
	sessions, err := h.store.ListSessions(r.Context(), status)
	if err != nil {
		logrus.WithError(err).Error("list sessions failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	type listedSession struct {
		interview.Session
		Exchanges int `json:"exchanges"`
	}
	out := make([]listedSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, listedSession{Session: s, Exchanges: s.Exchanges()})
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		logrus.WithError(err).Error("get session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	result, err := h.engine.EndSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, interviewService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		logrus.WithError(err).Error("end session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		logrus.WithError(err).Error("delete session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}
