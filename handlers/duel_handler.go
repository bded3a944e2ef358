package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/contest"
	"fitFeudAPI/internal/types/duel"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

type DuelHandler struct {
	duelService *services.DuelService
}

func NewDuelHandler(duelService *services.DuelService) *DuelHandler {
	return &DuelHandler{
		duelService: duelService,
	}
}

func (h *DuelHandler) CreateDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req duel.CreateDuelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	opponentID, err := uuid.Parse(req.OpponentID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid opponent_id")
		return
	}
	if !req.Type.Valid() {
		respondWithError(w, http.StatusBadRequest, "type must be workout_count or streak")
		return
	}
	if !contest.ValidDuration(req.DurationDays) {
		respondWithError(w, http.StatusBadRequest, "duration_days must be one of 3, 7, 14, 30")
		return
	}

	d, err := h.duelService.CreateDuel(ctx, clerkID, opponentID, req.Type, req.DurationDays)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, d)
}

func (h *DuelHandler) GetDuels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duels, err := h.duelService.ListDuelsForUser(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, duels)
}

func (h *DuelHandler) GetDuel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, ok := pathID(w, r, "duelID")
	if !ok {
		return
	}

	d, err := h.duelService.GetDuel(ctx, duelID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func (h *DuelHandler) AcceptDuel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.duelService.AcceptDuel)
}

func (h *DuelHandler) DeclineDuel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.duelService.DeclineDuel)
}

func (h *DuelHandler) CancelDuel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.duelService.CancelDuel)
}

func (h *DuelHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, string) (*duel.Duel, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	duelID, ok := pathID(w, r, "duelID")
	if !ok {
		return
	}

	d, err := op(ctx, duelID, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, d)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	var notFound *apperr.NotFoundError
	var conflict *apperr.ConflictError
	var authz *apperr.AuthorizationError
	var invalid *apperr.InvalidStateError

	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &authz):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &invalid):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("Internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
