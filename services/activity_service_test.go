package services

import (
	"context"
	"testing"
	"time"
)

func TestLogWorkoutAdvancesStreak(t *testing.T) {
	db := setupTestDB(t)
	svc := NewActivityService(db)
	ctx := context.Background()

	userID, _ := createTestUser(t, db, "act_streak")
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM workouts WHERE user_id = $1`, userID)
		db.Exec(context.Background(), `DELETE FROM streaks WHERE user_id = $1`, userID)
	})

	yesterday := time.Now().AddDate(0, 0, -1)
	resp, err := svc.LogWorkoutForUser(ctx, userID, yesterday)
	if err != nil {
		t.Fatalf("LogWorkoutForUser failed: %v", err)
	}
	if resp.WorkoutsCount != 1 || resp.CurrentStreak != 1 {
		t.Errorf("Expected 1 workout and streak 1, got %d and %d", resp.WorkoutsCount, resp.CurrentStreak)
	}

	resp, err = svc.LogWorkoutForUser(ctx, userID, time.Now())
	if err != nil {
		t.Fatalf("LogWorkoutForUser failed: %v", err)
	}
	if resp.WorkoutsCount != 2 {
		t.Errorf("Expected 2 workouts, got %d", resp.WorkoutsCount)
	}
	if resp.CurrentStreak != 2 || resp.LongestStreak != 2 {
		t.Errorf("Expected streak 2/2, got %d/%d", resp.CurrentStreak, resp.LongestStreak)
	}

	// Logging the same day twice changes nothing.
	resp, err = svc.LogWorkoutForUser(ctx, userID, time.Now())
	if err != nil {
		t.Fatalf("LogWorkoutForUser failed: %v", err)
	}
	if resp.WorkoutsCount != 2 || resp.CurrentStreak != 2 {
		t.Errorf("Expected same-day log to be idempotent, got %d workouts streak %d",
			resp.WorkoutsCount, resp.CurrentStreak)
	}
}

func TestWorkoutCountSinceWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewActivityService(db)
	ctx := context.Background()

	userID, _ := createTestUser(t, db, "act_window")
	logWorkoutsOnDays(t, db, svc, userID, 10, 1, 0)

	count, err := svc.WorkoutCountSince(ctx, userID, time.Now().AddDate(0, 0, -3))
	if err != nil {
		t.Fatalf("WorkoutCountSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 workouts inside the window, got %d", count)
	}

	count, err = svc.WorkoutCountSince(ctx, userID, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("WorkoutCountSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected all 3 workouts inside a wide window, got %d", count)
	}
}

func TestGetActivityCounters(t *testing.T) {
	db := setupTestDB(t)
	svc := NewActivityService(db)
	ctx := context.Background()

	userID, _ := createTestUser(t, db, "act_counters")
	groupID := createTestGroup(t, db, "act_group")
	addGroupMember(t, db, groupID, userID, "member")
	logWorkoutsOnDays(t, db, svc, userID, 0)

	snap, err := svc.GetActivity(ctx, userID)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if snap.WorkoutsCount != 1 {
		t.Errorf("Expected 1 workout, got %d", snap.WorkoutsCount)
	}
	if snap.GroupsCount != 1 {
		t.Errorf("Expected 1 group, got %d", snap.GroupsCount)
	}
	if snap.Streak != 1 {
		t.Errorf("Expected streak 1, got %d", snap.Streak)
	}
}
