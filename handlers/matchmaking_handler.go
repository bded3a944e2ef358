package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fitFeudAPI/internal/types/matchmaking"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

type MatchmakingHandler struct {
	matchmakingService *services.MatchmakingService
}

func NewMatchmakingHandler(matchmakingService *services.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{
		matchmakingService: matchmakingService,
	}
}

func (h *MatchmakingHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req matchmaking.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	groupID, err := uuid.Parse(req.GroupID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group_id")
		return
	}

	status, err := h.matchmakingService.Enqueue(ctx, clerkID, groupID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, status)
}

func (h *MatchmakingHandler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	groupID, ok := queryGroupID(w, r)
	if !ok {
		return
	}

	if err := h.matchmakingService.Dequeue(ctx, clerkID, groupID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Group removed from matchmaking queue"})
}

func (h *MatchmakingHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := middleware.GetClerkID(ctx); !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	groupID, ok := queryGroupID(w, r)
	if !ok {
		return
	}

	status, err := h.matchmakingService.QueueStatus(ctx, groupID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func queryGroupID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("group_id")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'group_id' is required")
		return uuid.Nil, false
	}
	groupID, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid group_id")
		return uuid.Nil, false
	}
	return groupID, true
}
