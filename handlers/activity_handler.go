package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fitFeudAPI/internal/points"
	"fitFeudAPI/internal/types/activity"
	"fitFeudAPI/middleware"
	"fitFeudAPI/services"
)

type ActivityHandler struct {
	activityService    *services.ActivityService
	duelService        *services.DuelService
	competitionService *services.CompetitionService
}

func NewActivityHandler(activityService *services.ActivityService, duelService *services.DuelService, competitionService *services.CompetitionService) *ActivityHandler {
	return &ActivityHandler{
		activityService:    activityService,
		duelService:        duelService,
		competitionService: competitionService,
	}
}

// LogWorkout records a workout day and fans the activity out to the contest
// engine: open duel scores are recomputed and one workout's worth of points
// is credited to the caller's active group competitions.
func (h *ActivityHandler) LogWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req activity.LogWorkoutRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			req = activity.LogWorkoutRequest{}
		}
	}

	userID, err := h.activityService.ResolveUserID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	resp, err := h.activityService.LogWorkoutForUser(ctx, userID, req.Date)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	updated, err := h.duelService.RecomputeUserDuels(ctx, userID)
	if err != nil {
		log.Printf("LogWorkout: recomputing duels for %s: %v", userID, err)
	}
	resp.DuelsUpdated = updated

	recorded, err := h.competitionService.RecordActivityContribution(ctx, userID, points.WorkoutWeight)
	if err != nil {
		log.Printf("LogWorkout: recording contributions for %s: %v", userID, err)
	}
	resp.Contributions = recorded

	respondWithJSON(w, http.StatusOK, resp)
}
