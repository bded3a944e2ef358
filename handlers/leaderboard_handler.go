package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fitFeudAPI/internal/points"
	"fitFeudAPI/internal/types/leaderboard"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
	}
}

// GetLeaderboard serves the ranked view for a scope. The caller supplies the
// period keys (e.g. "2026-08" and "2026-07"); when a period_key is present
// the returned board is also snapshotted for future movement computation.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	scope := leaderboard.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = leaderboard.ScopeGlobal
	}
	if !scope.Valid() {
		respondWithError(w, http.StatusBadRequest, "scope must be friends, groups or global")
		return
	}

	var groupID *uuid.UUID
	if raw := r.URL.Query().Get("group_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid group_id")
			return
		}
		groupID = &parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	periodKey := r.URL.Query().Get("period_key")
	previousPeriodKey := r.URL.Query().Get("previous_period_key")

	board, err := h.leaderboardService.GetLeaderboard(ctx, clerkID, scope, groupID, periodKey, previousPeriodKey, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if periodKey != "" {
		if err := h.leaderboardService.SaveBoardSnapshots(ctx, board); err != nil {
			// The board itself is still valid; movement just won't update.
			log.Printf("GetLeaderboard: saving snapshots: %v", err)
		}
	}

	respondWithJSON(w, http.StatusOK, board)
}

// GetPointsFormula serves the weight constants for the "how points work"
// explainer.
func (h *LeaderboardHandler) GetPointsFormula(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, points.Constants())
}
