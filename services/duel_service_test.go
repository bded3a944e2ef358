package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/contest"
	"fitFeudAPI/internal/types/duel"
)

func newDuelFixture(t *testing.T) (*DuelService, *ActivityService, context.Context) {
	db := setupTestDB(t)
	activity := NewActivityService(db)
	svc := NewDuelService(db, activity, newTestBus(t))
	return svc, activity, context.Background()
}

func TestDuelLifecycle(t *testing.T) {
	svc, _, ctx := newDuelFixture(t)
	db := svc.db

	challengerID, challengerClerk := createTestUser(t, db, "challenger")
	opponentID, opponentClerk := createTestUser(t, db, "opponent")

	d, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeWorkoutCount, 7)
	if err != nil {
		t.Fatalf("CreateDuel failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM duels WHERE id = $1`, d.ID)
	})

	if d.Status != contest.StatusPending {
		t.Errorf("Expected pending status, got %s", d.Status)
	}
	if d.ChallengerID != challengerID || d.OpponentID != opponentID {
		t.Error("Duel participants do not match request")
	}
	if d.StartedAt != nil || d.EndsAt != nil {
		t.Error("Pending duel should have no window yet")
	}

	// Only the opponent may accept.
	if _, err := svc.AcceptDuel(ctx, d.ID, challengerClerk); err == nil {
		t.Error("Expected challenger accept to be rejected")
	} else {
		var authzErr *apperr.AuthorizationError
		if !errors.As(err, &authzErr) {
			t.Errorf("Expected AuthorizationError, got %v", err)
		}
	}

	accepted, err := svc.AcceptDuel(ctx, d.ID, opponentClerk)
	if err != nil {
		t.Fatalf("AcceptDuel failed: %v", err)
	}
	if accepted.Status != contest.StatusActive {
		t.Errorf("Expected active status, got %s", accepted.Status)
	}
	if accepted.StartedAt == nil || accepted.EndsAt == nil {
		t.Fatal("Active duel must carry a start and deadline")
	}
	window := accepted.EndsAt.Sub(*accepted.StartedAt)
	if days := int(window.Hours() / 24); days != 7 {
		t.Errorf("Expected a 7 day window, got %d days", days)
	}

	// Accepting again is no longer pending.
	if _, err := svc.AcceptDuel(ctx, d.ID, opponentClerk); err == nil {
		t.Error("Expected second accept to fail")
	} else {
		var stateErr *apperr.InvalidStateError
		if !errors.As(err, &stateErr) {
			t.Errorf("Expected InvalidStateError, got %v", err)
		}
	}
}

func TestCreateDuelRejectsSelfAndDuplicates(t *testing.T) {
	svc, _, ctx := newDuelFixture(t)
	db := svc.db

	challengerID, challengerClerk := createTestUser(t, db, "dup_challenger")
	opponentID, opponentClerk := createTestUser(t, db, "dup_opponent")

	if _, err := svc.CreateDuel(ctx, challengerClerk, challengerID, duel.TypeWorkoutCount, 3); err == nil {
		t.Error("Expected self duel to be rejected")
	} else {
		var conflictErr *apperr.ConflictError
		if !errors.As(err, &conflictErr) {
			t.Errorf("Expected ConflictError, got %v", err)
		}
	}

	d, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeStreak, 3)
	if err != nil {
		t.Fatalf("CreateDuel failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM duels WHERE id = $1`, d.ID)
	})

	// Same pair again, either direction, while the first is still open.
	if _, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeWorkoutCount, 7); err == nil {
		t.Error("Expected duplicate duel to be rejected")
	}
	if _, err := svc.CreateDuel(ctx, opponentClerk, challengerID, duel.TypeWorkoutCount, 7); err == nil {
		t.Error("Expected reverse direction duel to be rejected")
	}

	// Declining the first frees the pair.
	if _, err := svc.DeclineDuel(ctx, d.ID, opponentClerk); err != nil {
		t.Fatalf("DeclineDuel failed: %v", err)
	}
	d2, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeWorkoutCount, 7)
	if err != nil {
		t.Fatalf("CreateDuel after decline failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM duels WHERE id = $1`, d2.ID)
	})
}

func TestCancelDuelOnlyByChallenger(t *testing.T) {
	svc, _, ctx := newDuelFixture(t)
	db := svc.db

	_, challengerClerk := createTestUser(t, db, "cancel_challenger")
	opponentID, opponentClerk := createTestUser(t, db, "cancel_opponent")

	d, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeWorkoutCount, 3)
	if err != nil {
		t.Fatalf("CreateDuel failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM duels WHERE id = $1`, d.ID)
	})

	if _, err := svc.CancelDuel(ctx, d.ID, opponentClerk); err == nil {
		t.Error("Expected opponent cancel to be rejected")
	}

	cancelled, err := svc.CancelDuel(ctx, d.ID, challengerClerk)
	if err != nil {
		t.Fatalf("CancelDuel failed: %v", err)
	}
	if cancelled.Status != contest.StatusCancelled {
		t.Errorf("Expected cancelled status, got %s", cancelled.Status)
	}
}

func TestFinalizeExpiredDuel(t *testing.T) {
	svc, activity, ctx := newDuelFixture(t)
	db := svc.db

	challengerID, challengerClerk := createTestUser(t, db, "fin_challenger")
	opponentID, opponentClerk := createTestUser(t, db, "fin_opponent")

	d, err := svc.CreateDuel(ctx, challengerClerk, opponentID, duel.TypeWorkoutCount, 3)
	if err != nil {
		t.Fatalf("CreateDuel failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM duels WHERE id = $1`, d.ID)
	})

	if _, err := svc.AcceptDuel(ctx, d.ID, opponentClerk); err != nil {
		t.Fatalf("AcceptDuel failed: %v", err)
	}

	// Challenger trains, opponent does not.
	logWorkoutsOnDays(t, db, activity, challengerID, 0)

	forceExpired(t, db, "duels", d.ID)

	final, finalized, err := svc.FinalizeIfExpired(ctx, d.ID)
	if err != nil {
		t.Fatalf("FinalizeIfExpired failed: %v", err)
	}
	if !finalized {
		t.Fatal("Expected this call to perform the finalization")
	}
	if final.Status != contest.StatusCompleted {
		t.Errorf("Expected completed status, got %s", final.Status)
	}
	if final.WinnerID == nil || *final.WinnerID != challengerID {
		t.Errorf("Expected challenger %s to win, got %v", challengerID, final.WinnerID)
	}
	if final.ChallengerScore != 1 || final.OpponentScore != 0 {
		t.Errorf("Expected 1-0 score, got %d-%d", final.ChallengerScore, final.OpponentScore)
	}

	// Finalizing again is a no-op that reports the settled result.
	again, finalized, err := svc.FinalizeIfExpired(ctx, d.ID)
	if err != nil {
		t.Fatalf("Second FinalizeIfExpired failed: %v", err)
	}
	if finalized {
		t.Error("Second finalize should be a no-op")
	}
	if again.Status != contest.StatusCompleted {
		t.Errorf("Expected completed status on reread, got %s", again.Status)
	}
}

func TestGetDuelNotFound(t *testing.T) {
	svc, _, ctx := newDuelFixture(t)

	_, err := svc.GetDuel(ctx, uuid.New())
	if err == nil {
		t.Fatal("Expected error for unknown duel")
	}
	var nfErr *apperr.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}
