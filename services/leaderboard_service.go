package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/points"
	"fitFeudAPI/internal/ranking"
	"fitFeudAPI/internal/types/leaderboard"
)

const DefaultLeaderboardLimit = 50

type LeaderboardService struct {
	db *pgxpool.Pool
}

func NewLeaderboardService(db *pgxpool.Pool) *LeaderboardService {
	return &LeaderboardService{db: db}
}

func (s *LeaderboardService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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

const activityCountersQuery = `
SELECT u.id, u.username, u.image_url,
	COALESCE(w.cnt, 0) AS workouts_count,
	COALESCE(st.current_streak, 0) AS streak,
	COALESCE(g.cnt, 0) AS groups_count,
	COALESCE(fc.cnt, 0) AS friends_count
FROM users u
LEFT JOIN (SELECT user_id, COUNT(*) AS cnt FROM workouts GROUP BY user_id) w ON w.user_id = u.id
LEFT JOIN streaks st ON st.user_id = u.id
LEFT JOIN (SELECT user_id, COUNT(*) AS cnt FROM group_members GROUP BY user_id) g ON g.user_id = u.id
LEFT JOIN (
	SELECT user_id, COUNT(*) AS cnt FROM (
		SELECT user_id FROM friendships WHERE status = 'accepted'
		UNION ALL
		SELECT friend_id AS user_id FROM friendships WHERE status = 'accepted'
	) fr GROUP BY user_id
) fc ON fc.user_id = u.id
`

// GetLeaderboard ranks every user in scope by the points formula. Entries
// are capped at limit; when the requester falls outside the cap their row is
// returned separately with its true rank. When previousPeriodKey is set,
// rank movement against that period's snapshots is filled in.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, clerkID string, scope leaderboard.Scope, groupID *uuid.UUID, periodKey, previousPeriodKey string, limit int) (*leaderboard.Leaderboard, error) {
	requesterID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	var rows pgx.Rows
	switch scope {
	case leaderboard.ScopeFriends:
		query := activityCountersQuery + `
		WHERE u.id = $1 OR u.id IN (
			SELECT friend_id FROM friendships WHERE user_id = $1 AND status = 'accepted'
			UNION
			SELECT user_id FROM friendships WHERE friend_id = $1 AND status = 'accepted'
		)`
		rows, err = s.db.Query(ctx, query, requesterID)
	case leaderboard.ScopeGroups:
		if groupID == nil {
			return s.emptyBoard(scope, periodKey), nil
		}
		query := activityCountersQuery + `
		WHERE u.id IN (SELECT user_id FROM group_members WHERE group_id = $1)`
		rows, err = s.db.Query(ctx, query, *groupID)
	default:
		rows, err = s.db.Query(ctx, activityCountersQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	byUser := make(map[uuid.UUID]*leaderboard.Entry)
	var standings []ranking.Standing
	for rows.Next() {
		entry := &leaderboard.Entry{}
		err := rows.Scan(
			&entry.UserID,
			&entry.Username,
			&entry.ImageURL,
			&entry.WorkoutsCount,
			&entry.Streak,
			&entry.GroupsCount,
			&entry.FriendsCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.Points = points.Calculate(entry.WorkoutsCount, entry.Streak, entry.GroupsCount, entry.FriendsCount)
		byUser[entry.UserID] = entry
		standings = append(standings, ranking.Standing{UserID: entry.UserID, Points: entry.Points})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := ranking.Rank(standings)

	ordered := make([]*leaderboard.Entry, 0, len(ranked))
	var userPosition *leaderboard.Entry
	for _, r := range ranked {
		entry := byUser[r.UserID]
		entry.Rank = r.Rank
		ordered = append(ordered, entry)
		if entry.UserID == requesterID {
			userPosition = entry
		}
	}

	if previousPeriodKey != "" {
		if err := s.fillMovement(ctx, scope, previousPeriodKey, ordered); err != nil {
			return nil, err
		}
	}

	entries := ordered
	if len(entries) > limit {
		entries = entries[:limit]
	}

	return &leaderboard.Leaderboard{
		Scope:        scope,
		PeriodKey:    periodKey,
		Entries:      entries,
		UserPosition: userPosition,
		TotalUsers:   len(ordered),
	}, nil
}

func (s *LeaderboardService) emptyBoard(scope leaderboard.Scope, periodKey string) *leaderboard.Leaderboard {
	return &leaderboard.Leaderboard{
		Scope:     scope,
		PeriodKey: periodKey,
		Entries:   []*leaderboard.Entry{},
	}
}

func (s *LeaderboardService) fillMovement(ctx context.Context, scope leaderboard.Scope, previousPeriodKey string, entries []*leaderboard.Entry) error {
	query := `
	SELECT user_id, rank FROM leaderboard_snapshots
	WHERE scope = $1 AND period_key = $2
	`
	rows, err := s.db.Query(ctx, query, scope, previousPeriodKey)
	if err != nil {
		return fmt.Errorf("failed to fetch previous snapshots: %w", err)
	}
	defer rows.Close()

	previous := make(map[uuid.UUID]int)
	for rows.Next() {
		var userID uuid.UUID
		var rank int
		if err := rows.Scan(&userID, &rank); err != nil {
			return err
		}
		previous[userID] = rank
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, entry := range entries {
		if prevRank, ok := previous[entry.UserID]; ok {
			movement := ranking.Movement(prevRank, entry.Rank)
			entry.Movement = &movement
		}
	}
	return nil
}

// GetPreviousSnapshot returns the stored snapshot for the given period, or
// nil when the user had none. Callers pass the key of the period before the
// one being ranked; the engine never derives periods from the clock.
func (s *LeaderboardService) GetPreviousSnapshot(ctx context.Context, userID uuid.UUID, scope leaderboard.Scope, periodKey string) (*leaderboard.Snapshot, error) {
	snap := &leaderboard.Snapshot{}
	query := `
	SELECT user_id, scope, period_key, rank, points, taken_at
	FROM leaderboard_snapshots
	WHERE user_id = $1 AND scope = $2 AND period_key = $3
	`
	err := s.db.QueryRow(ctx, query, userID, scope, periodKey).Scan(
		&snap.UserID,
		&snap.Scope,
		&snap.PeriodKey,
		&snap.Rank,
		&snap.Points,
		&snap.TakenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// SaveSnapshot upserts one user's rank for the current period. Last write
// wins per (user, scope, period).
func (s *LeaderboardService) SaveSnapshot(ctx context.Context, userID uuid.UUID, scope leaderboard.Scope, periodKey string, rank int, pointsValue int64) error {
	query := `
	INSERT INTO leaderboard_snapshots (user_id, scope, period_key, rank, points, taken_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, scope, period_key) DO UPDATE SET
		rank = EXCLUDED.rank,
		points = EXCLUDED.points,
		taken_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, userID, scope, periodKey, rank, pointsValue); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SaveBoardSnapshots persists current-period snapshots for every returned
// row in one round trip.
func (s *LeaderboardService) SaveBoardSnapshots(ctx context.Context, board *leaderboard.Leaderboard) error {
	if board.PeriodKey == "" {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
	INSERT INTO leaderboard_snapshots (user_id, scope, period_key, rank, points, taken_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, scope, period_key) DO UPDATE SET
		rank = EXCLUDED.rank,
		points = EXCLUDED.points,
		taken_at = NOW()
	`
	for _, entry := range board.Entries {
		batch.Queue(query, entry.UserID, board.Scope, board.PeriodKey, entry.Rank, entry.Points)
	}
	if pos := board.UserPosition; pos != nil && pos.Rank > len(board.Entries) {
		batch.Queue(query, pos.UserID, board.Scope, board.PeriodKey, pos.Rank, pos.Points)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save board snapshots: %w", err)
		}
	}
	return nil
}
