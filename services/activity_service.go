package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/types/activity"
)

// ActivityService is the engine's activity source: counter snapshots for the
// points formula and since-timestamp deltas for contest scoring.
type ActivityService struct {
	db *pgxpool.Pool
}

func NewActivityService(db *pgxpool.Pool) *ActivityService {
	return &ActivityService{db: db}
}

// ResolveUserID maps the authenticated Clerk subject to the internal user id.
func (s *ActivityService) ResolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.NotFound("user", clerkID)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}

// GetActivity returns the full counter snapshot for one user.
func (s *ActivityService) GetActivity(ctx context.Context, userID uuid.UUID) (*activity.Snapshot, error) {
	query := `
	SELECT
		u.id,
		(SELECT COUNT(*) FROM workouts w WHERE w.user_id = u.id),
		COALESCE(st.current_streak, 0),
		(SELECT COUNT(*) FROM group_members gm WHERE gm.user_id = u.id),
		(SELECT COUNT(*) FROM friendships f
			WHERE (f.user_id = u.id OR f.friend_id = u.id) AND f.status = 'accepted')
	FROM users u
	LEFT JOIN streaks st ON st.user_id = u.id
	WHERE u.id = $1
	`

	snap := &activity.Snapshot{}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&snap.UserID,
		&snap.WorkoutsCount,
		&snap.Streak,
		&snap.GroupsCount,
		&snap.FriendsCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user", userID.String())
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	return snap, nil
}

// WorkoutCountSince counts workout days logged at or after the given time.
func (s *ActivityService) WorkoutCountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM workouts WHERE user_id = $1 AND workout_date >= $2::date`
	if err := s.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count workouts: %w", err)
	}
	return count, nil
}

// StreakSince returns the consecutive-day streak accrued since the given
// time: the user's current streak capped at the days elapsed, or zero when
// the streak broke before the window opened.
func (s *ActivityService) StreakSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var current int
	var lastWorkout *time.Time
	query := `SELECT current_streak, last_workout_date FROM streaks WHERE user_id = $1`
	err := s.db.QueryRow(ctx, query, userID).Scan(&current, &lastWorkout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get streak: %w", err)
	}

	if lastWorkout == nil || lastWorkout.Before(since.Truncate(24*time.Hour)) {
		return 0, nil
	}

	elapsed := int(time.Since(since).Hours()/24) + 1
	if current > elapsed {
		return elapsed, nil
	}
	return current, nil
}

// LogWorkout records a workout day for the caller. Logging the same day
// twice is an upsert, and the streak row advances or resets accordingly.
func (s *ActivityService) LogWorkout(ctx context.Context, clerkID string, date time.Time) (*activity.LogWorkoutResponse, error) {
	userID, err := s.ResolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.LogWorkoutForUser(ctx, userID, date)
}

func (s *ActivityService) LogWorkoutForUser(ctx context.Context, userID uuid.UUID, date time.Time) (*activity.LogWorkoutResponse, error) {
	if date.IsZero() {
		date = time.Now()
	}
	day := date.Truncate(24 * time.Hour)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertWorkout := `
	INSERT INTO workouts (user_id, workout_date, logged_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (user_id, workout_date) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertWorkout, userID, day); err != nil {
		return nil, fmt.Errorf("failed to log workout: %w", err)
	}

	upsertStreak := `
	INSERT INTO streaks (user_id, current_streak, longest_streak, last_workout_date, updated_at)
	VALUES ($1, 1, 1, $2, NOW())
	ON CONFLICT (user_id) DO UPDATE SET
		current_streak = CASE
			WHEN streaks.last_workout_date = $2::date THEN streaks.current_streak
			WHEN streaks.last_workout_date = $2::date - 1 THEN streaks.current_streak + 1
			ELSE 1
		END,
		longest_streak = GREATEST(streaks.longest_streak, CASE
			WHEN streaks.last_workout_date = $2::date THEN streaks.current_streak
			WHEN streaks.last_workout_date = $2::date - 1 THEN streaks.current_streak + 1
			ELSE 1
		END),
		last_workout_date = GREATEST(streaks.last_workout_date, $2::date),
		updated_at = NOW()
	RETURNING current_streak, longest_streak
	`

	resp := &activity.LogWorkoutResponse{}
	err = tx.QueryRow(ctx, upsertStreak, userID, day).Scan(&resp.CurrentStreak, &resp.LongestStreak)
	if err != nil {
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM workouts WHERE user_id = $1`
	if err := tx.QueryRow(ctx, countQuery, userID).Scan(&resp.WorkoutsCount); err != nil {
		return nil, fmt.Errorf("failed to count workouts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit workout: %w", err)
	}

	return resp, nil
}
