// Package api exposes the session manager over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/user/solo-adventure/internal/game"
	"github.com/user/solo-adventure/internal/interfaces"
	"github.com/user/solo-adventure/internal/rules"
	"github.com/user/solo-adventure/internal/types"
	"go.uber.org/zap"
)

// Handler serves the game HTTP API
type Handler struct {
	gameManager interfaces.GameManager
	logger      *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(gameManager interfaces.GameManager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gameManager: gameManager,
		logger:      logger,
	}
}

// Routes returns a router serving only the API
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	h.Register(router)
	return router
}

// Register adds the API routes to router
func (h *Handler) Register(router chi.Router) {
	router.Get("/health", h.health)
	router.Get("/classes", h.classes)
	router.Get("/skills", h.skills)
	router.Get("/models", h.models)

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Get("/", h.listSessions)
		r.Post("/load/{id}", h.loadSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.endSession)
			r.Post("/actions", h.submitAction)
			r.Post("/rolls", h.resolveCheck)
			r.Post("/manual-rolls", h.manualRoll)
			r.Post("/events", h.triggerEvent)
			r.Post("/items/give", h.giveItem)
			r.Post("/items/drop", h.dropItem)
			r.Post("/companions/talk", h.talkToCompanion)
			r.Post("/companions/dismiss", h.dismissCompanion)
			r.Post("/save", h.saveSession)
		})
	})

	router.Get("/saves", h.listSnapshots)
	router.Delete("/saves/{id}", h.deleteSnapshot)
}

type actionRequest struct {
	Text string `json:"text"`
}

type skillRequest struct {
	Skill string `json:"skill"`
}

type eventRequest struct {
	Kind string `json:"kind"`
}

type itemRequest struct {
	Item string `json:"item"`
}

type companionRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) classes(w http.ResponseWriter, r *http.Request) {
	names := rules.ClassNames()
	classes := make([]types.ClassDefinition, 0, len(names))
	for _, name := range names {
		def, _ := rules.LookupClass(name)
		classes = append(classes, def)
	}
	h.writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) skills(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, rules.Skills)
}

func (h *Handler) models(w http.ResponseWriter, r *http.Request) {
	models, err := h.gameManager.ListModels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req types.NewSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.CreateSession(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Session created",
		zap.String("session_id", res.SessionID),
		zap.String("class", req.Class))
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.gameManager.ListSessions())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameManager.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if err := h.gameManager.EndSession(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.SubmitAction(r.Context(), chi.URLParam(r, "id"), req.Text)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) resolveCheck(w http.ResponseWriter, r *http.Request) {
	var req skillRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.ResolveCheck(r.Context(), chi.URLParam(r, "id"), req.Skill)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) manualRoll(w http.ResponseWriter, r *http.Request) {
	var req skillRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.ManualRoll(r.Context(), chi.URLParam(r, "id"), req.Skill)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) triggerEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.TriggerEvent(r.Context(), chi.URLParam(r, "id"), req.Kind)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) giveItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.GiveItem(r.Context(), chi.URLParam(r, "id"), req.Item)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) dropItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.DropItem(chi.URLParam(r, "id"), req.Item)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) talkToCompanion(w http.ResponseWriter, r *http.Request) {
	var req companionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.TalkToCompanion(r.Context(), chi.URLParam(r, "id"), req.Name)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) dismissCompanion(w http.ResponseWriter, r *http.Request) {
	var req companionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.gameManager.DismissCompanion(r.Context(), chi.URLParam(r, "id"), req.Name)
	h.writeTurn(w, r, res, err)
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.gameManager.SaveSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameManager.LoadSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := h.gameManager.ListSnapshots(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if infos == nil {
		infos = []types.SnapshotInfo{}
	}
	h.writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.gameManager.DeleteSnapshot(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into v. An empty body leaves v zeroed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeTurn(w http.ResponseWriter, r *http.Request, res *types.TurnResult, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// statusOf maps game errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, game.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrCheckPending),
		errors.Is(err, game.ErrTurnInProgress),
		errors.Is(err, game.ErrNoPendingCheck):
		return http.StatusConflict
	case errors.Is(err, game.ErrEmptyName),
		errors.Is(err, game.ErrUnknownClass),
		errors.Is(err, game.ErrInvalidScore),
		errors.Is(err, game.ErrEmptyAction),
		errors.Is(err, game.ErrSkillNotAllowed),
		errors.Is(err, game.ErrUnknownEvent),
		errors.Is(err, game.ErrItemNotHeld),
		errors.Is(err, game.ErrUnknownCompanion),
		errors.Is(err, game.ErrInvalidSessionID),
		errors.Is(err, game.ErrUnsupportedVersion),
		errors.Is(err, rules.ErrUnknownSkill):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
