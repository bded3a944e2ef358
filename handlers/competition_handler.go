package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fitFeudAPI/internal/types/competition"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

type CompetitionHandler struct {
	competitionService *services.CompetitionService
}

func NewCompetitionHandler(competitionService *services.CompetitionService) *CompetitionHandler {
	return &CompetitionHandler{
		competitionService: competitionService,
	}
}

// CreateCompetition opens a challenge-type competition. Matchmaking-type
// competitions are never created directly; they come out of the queue.
func (h *CompetitionHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req competition.CreateCompetitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	group1ID, err := uuid.Parse(req.Group1ID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group1_id")
		return
	}
	group2ID, err := uuid.Parse(req.Group2ID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group2_id")
		return
	}

	c, err := h.competitionService.CreateChallenge(ctx, clerkID, group1ID, group2ID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

func (h *CompetitionHandler) GetCompetitions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	comps, err := h.competitionService.ListForUser(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, comps)
}

func (h *CompetitionHandler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	compID, ok := pathID(w, r, "competitionID")
	if !ok {
		return
	}

	detail, err := h.competitionService.GetCompetition(ctx, compID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *CompetitionHandler) AcceptCompetition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.competitionService.AcceptCompetition)
}

func (h *CompetitionHandler) CancelCompetition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.competitionService.CancelCompetition)
}

func (h *CompetitionHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, string) (*competition.Competition, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	compID, ok := pathID(w, r, "competitionID")
	if !ok {
		return
	}

	c, err := op(ctx, compID, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}
