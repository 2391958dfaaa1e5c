// Package handler wires HTTP routes to the core services.
package handler

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	audioHandler "github.com/marsdhp/sme-interview/backend/internal/handler/audio"
	interviewHandler "github.com/marsdhp/sme-interview/backend/internal/handler/interview"
	sessionHandler "github.com/marsdhp/sme-interview/backend/internal/handler/session"
	middlewarePkg "github.com/marsdhp/sme-interview/backend/internal/middleware"
	"github.com/marsdhp/sme-interview/backend/internal/model/voice"
	interviewService "github.com/marsdhp/sme-interview/backend/internal/service/interview"
	"github.com/marsdhp/sme-interview/backend/internal/store"
	"github.com/marsdhp/sme-interview/backend/internal/token"
	"github.com/marsdhp/sme-interview/backend/pkg/utils"

	"github.com/marsdhp/sme-interview/backend/internal/audiocache"
)

// NewRouter builds the HTTP surface. tokens may be nil when auth is
// disabled; audioCache may be nil when synthesis is not configured.
func NewRouter(engine *interviewService.Engine, st store.Store, tokens *token.Store, audioCache *audiocache.Cache, requireAuth bool) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Audio is fingerprint-addressed and immutable, so it is served outside
	// the authenticated API surface.
	audioHandler.New(audioCache).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Auth(tokens, requireAuth && tokens != nil))

		// Reaching this handler means the auth middleware accepted the
		// token, so it only has to echo the verdict.
		api.Post("/auth", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"valid": true,
				"name":  middlewarePkg.TokenName(r.Context()),
			})
		})

		api.Get("/voices", handleListVoices)

		sessionHandler.New(engine, st, tokens).RegisterRoutes(api)
		interviewHandler.New(engine).RegisterRoutes(api)
	})

	return r
}

func handleListVoices(w http.ResponseWriter, _ *http.Request) {
	voices := voice.List()
	sort.Slice(voices, func(i, j int) bool { return voices[i].Key < voices[j].Key })
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"voices":       voices,
		"default":      voice.DefaultPreset,
		"default_rate": voice.DefaultSpeechRate,
	})
}
