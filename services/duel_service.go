package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/contest"
	"fitFeudAPI/internal/events"
	"fitFeudAPI/internal/types/duel"
)

const duelColumns = `id, challenger_id, opponent_id, duel_type, duration_days, status,
	started_at, ends_at, challenger_score, opponent_score, winner_id, created_at, updated_at`

type DuelService struct {
	db       *pgxpool.Pool
	activity *ActivityService
	bus      *events.Bus
}

func NewDuelService(db *pgxpool.Pool, activity *ActivityService, bus *events.Bus) *DuelService {
	return &DuelService{db: db, activity: activity, bus: bus}
}

func (s *DuelService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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

func scanDuel(row pgx.Row) (*duel.Duel, error) {
	d := &duel.Duel{}
	err := row.Scan(
		&d.ID,
		&d.ChallengerID,
		&d.OpponentID,
		&d.Type,
		&d.DurationDays,
		&d.Status,
		&d.StartedAt,
		&d.EndsAt,
		&d.ChallengerScore,
		&d.OpponentScore,
		&d.WinnerID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DuelService) loadDuel(ctx context.Context, duelID uuid.UUID) (*duel.Duel, error) {
	query := fmt.Sprintf(`SELECT %s FROM duels WHERE id = $1`, duelColumns)
	d, err := scanDuel(s.db.QueryRow(ctx, query, duelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("duel", duelID.String())
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}
	return d, nil
}

// CreateDuel opens a pending duel from the caller towards the opponent.
// Only one open duel may exist between a pair of users, in either direction.
func (s *DuelService) CreateDuel(ctx context.Context, clerkID string, opponentID uuid.UUID, duelType duel.Type, durationDays int) (*duel.Duel, error) {
	challengerID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if challengerID == opponentID {
		return nil, apperr.Conflictf("cannot challenge yourself to a duel")
	}

	var opponentExists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, opponentID).Scan(&opponentExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check opponent: %w", err)
	}
	if !opponentExists {
		return nil, apperr.NotFound("user", opponentID.String())
	}

	var open bool
	checkQuery := `
	SELECT EXISTS(
		SELECT 1 FROM duels
		WHERE status IN ('pending', 'active')
		AND ((challenger_id = $1 AND opponent_id = $2)
		  OR (challenger_id = $2 AND opponent_id = $1))
	)
	`
	if err := s.db.QueryRow(ctx, checkQuery, challengerID, opponentID).Scan(&open); err != nil {
		return nil, fmt.Errorf("failed to check open duels: %w", err)
	}
	if open {
		return nil, apperr.Conflictf("an open duel already exists between these users")
	}

	insertQuery := fmt.Sprintf(`
	INSERT INTO duels (id, challenger_id, opponent_id, duel_type, duration_days, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 'pending', NOW(), NOW())
	RETURNING %s`, duelColumns)

	d, err := scanDuel(s.db.QueryRow(ctx, insertQuery, uuid.New(), challengerID, opponentID, duelType, durationDays))
	if err != nil {
		return nil, fmt.Errorf("failed to create duel: %w", err)
	}

	log.Printf("CreateDuel: %s challenged %s (%s, %d days)", challengerID, opponentID, duelType, durationDays)
	return d, nil
}

// AcceptDuel activates a pending duel. Only the challenged user may accept;
// acceptance starts the clock.
func (s *DuelService) AcceptDuel(ctx context.Context, duelID uuid.UUID, clerkID string) (*duel.Duel, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	d, err := s.loadDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.OpponentID != userID {
		return nil, apperr.Authorizationf("only the challenged user may accept this duel")
	}

	updateQuery := fmt.Sprintf(`
	UPDATE duels
	SET status = 'active',
		started_at = NOW(),
		ends_at = NOW() + make_interval(days => duration_days),
		updated_at = NOW()
	WHERE id = $1 AND status = 'pending'
	RETURNING %s`, duelColumns)

	updated, err := scanDuel(s.db.QueryRow(ctx, updateQuery, duelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.InvalidStatef("duel is %s, only a pending duel can be accepted", d.Status)
		}
		return nil, fmt.Errorf("failed to accept duel: %w", err)
	}

	s.bus.Publish(events.DuelAccepted, map[string]string{
		"duel_id":       updated.ID.String(),
		"challenger_id": updated.ChallengerID.String(),
		"opponent_id":   updated.OpponentID.String(),
	})
	return updated, nil
}

// DeclineDuel is the opponent's terminal rejection of a pending duel.
func (s *DuelService) DeclineDuel(ctx context.Context, duelID uuid.UUID, clerkID string) (*duel.Duel, error) {
	return s.closePending(ctx, duelID, clerkID, contest.StatusDeclined)
}

// CancelDuel is the challenger's terminal withdrawal of a pending duel.
func (s *DuelService) CancelDuel(ctx context.Context, duelID uuid.UUID, clerkID string) (*duel.Duel, error) {
	return s.closePending(ctx, duelID, clerkID, contest.StatusCancelled)
}

func (s *DuelService) closePending(ctx context.Context, duelID uuid.UUID, clerkID string, to contest.Status) (*duel.Duel, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	d, err := s.loadDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}

	switch to {
	case contest.StatusDeclined:
		if d.OpponentID != userID {
			return nil, apperr.Authorizationf("only the challenged user may decline this duel")
		}
	case contest.StatusCancelled:
		if d.ChallengerID != userID {
			return nil, apperr.Authorizationf("only the challenger may cancel this duel")
		}
	}

	updateQuery := fmt.Sprintf(`
	UPDATE duels SET status = $2, updated_at = NOW()
	WHERE id = $1 AND status = 'pending'
	RETURNING %s`, duelColumns)

	updated, err := scanDuel(s.db.QueryRow(ctx, updateQuery, duelID, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.InvalidStatef("duel is %s, only a pending duel can be %s", d.Status, to)
		}
		return nil, fmt.Errorf("failed to update duel: %w", err)
	}

	evt := events.DuelDeclined
	if to == contest.StatusCancelled {
		evt = events.DuelCancelled
	}
	s.bus.Publish(evt, map[string]string{"duel_id": updated.ID.String()})
	return updated, nil
}

func (s *DuelService) currentScores(ctx context.Context, d *duel.Duel) (int, int, error) {
	if d.StartedAt == nil {
		return 0, 0, nil
	}

	var challengerScore, opponentScore int
	var err error
	switch d.Type {
	case duel.TypeStreak:
		challengerScore, err = s.activity.StreakSince(ctx, d.ChallengerID, *d.StartedAt)
		if err == nil {
			opponentScore, err = s.activity.StreakSince(ctx, d.OpponentID, *d.StartedAt)
		}
	default:
		challengerScore, err = s.activity.WorkoutCountSince(ctx, d.ChallengerID, *d.StartedAt)
		if err == nil {
			opponentScore, err = s.activity.WorkoutCountSince(ctx, d.OpponentID, *d.StartedAt)
		}
	}
	if err != nil {
		return 0, 0, err
	}
	return challengerScore, opponentScore, nil
}

// RecomputeScores refreshes both scores from the activity stream. Terminal
// duels are left untouched.
func (s *DuelService) RecomputeScores(ctx context.Context, duelID uuid.UUID) (*duel.Duel, error) {
	d, err := s.loadDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.Status != contest.StatusActive {
		return d, nil
	}

	challengerScore, opponentScore, err := s.currentScores(ctx, d)
	if err != nil {
		return nil, err
	}

	updateQuery := fmt.Sprintf(`
	UPDATE duels
	SET challenger_score = $2, opponent_score = $3, updated_at = NOW()
	WHERE id = $1 AND status = 'active'
	RETURNING %s`, duelColumns)

	updated, err := scanDuel(s.db.QueryRow(ctx, updateQuery, duelID, challengerScore, opponentScore))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Finalized in the meantime; its scores are already frozen.
			return s.loadDuel(ctx, duelID)
		}
		return nil, fmt.Errorf("failed to update scores: %w", err)
	}
	return updated, nil
}

// RecomputeUserDuels refreshes every active duel the user participates in,
// returning how many were touched.
func (s *DuelService) RecomputeUserDuels(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM duels WHERE status = 'active' AND (challenger_id = $1 OR opponent_id = $1)`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active duels: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		if _, err := s.RecomputeScores(ctx, id); err != nil {
			log.Printf("RecomputeUserDuels: duel %s: %v", id, err)
			continue
		}
		updated++
	}
	return updated, nil
}

// FinalizeIfExpired completes an active duel whose window has elapsed,
// freezing scores and deciding the winner (nil on a tie). Calling it on an
// already-resolved duel is a no-op. The returned bool reports whether this
// call performed the transition.
func (s *DuelService) FinalizeIfExpired(ctx context.Context, duelID uuid.UUID) (*duel.Duel, bool, error) {
	d, err := s.loadDuel(ctx, duelID)
	if err != nil {
		return nil, false, err
	}
	if d.Status != contest.StatusActive || d.EndsAt == nil {
		return d, false, nil
	}
	if !contest.Expired(*d.EndsAt, time.Now()) {
		return d, false, nil
	}

	challengerScore, opponentScore, err := s.currentScores(ctx, d)
	if err != nil {
		return nil, false, err
	}

	var winnerID *uuid.UUID
	switch contest.WinnerIndex(int64(challengerScore), int64(opponentScore)) {
	case 1:
		winnerID = &d.ChallengerID
	case 2:
		winnerID = &d.OpponentID
	}

	updateQuery := fmt.Sprintf(`
	UPDATE duels
	SET status = 'completed',
		challenger_score = $2,
		opponent_score = $3,
		winner_id = $4,
		updated_at = NOW()
	WHERE id = $1 AND status = 'active'
	RETURNING %s`, duelColumns)

	updated, err := scanDuel(s.db.QueryRow(ctx, updateQuery, duelID, challengerScore, opponentScore, winnerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race to another finalizer; report its result.
			d, err := s.loadDuel(ctx, duelID)
			return d, false, err
		}
		return nil, false, fmt.Errorf("failed to finalize duel: %w", err)
	}

	data := map[string]string{"duel_id": updated.ID.String()}
	if updated.WinnerID != nil {
		data["winner_id"] = updated.WinnerID.String()
	}
	s.bus.Publish(events.DuelCompleted, data)

	log.Printf("FinalizeIfExpired: duel %s completed %d-%d", updated.ID, updated.ChallengerScore, updated.OpponentScore)
	return updated, true, nil
}

// GetDuel loads one duel, opportunistically finalizing it when its window
// has already elapsed so reads never show a stale active contest.
func (s *DuelService) GetDuel(ctx context.Context, duelID uuid.UUID) (*duel.Duel, error) {
	d, err := s.loadDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.Status == contest.StatusActive && d.EndsAt != nil && contest.Expired(*d.EndsAt, time.Now()) {
		d, _, err = s.FinalizeIfExpired(ctx, duelID)
		return d, err
	}
	return d, nil
}

// ListDuelsForUser returns the caller's duels, newest first, finalizing any
// that expired since the last sweep.
func (s *DuelService) ListDuelsForUser(ctx context.Context, clerkID string) ([]*duel.Duel, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	expired, err := s.expiredActiveIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range expired {
		if _, _, err := s.FinalizeIfExpired(ctx, id); err != nil {
			log.Printf("ListDuelsForUser: finalize %s: %v", id, err)
		}
	}

	query := fmt.Sprintf(`
	SELECT %s FROM duels
	WHERE challenger_id = $1 OR opponent_id = $1
	ORDER BY created_at DESC
	LIMIT 50`, duelColumns)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list duels: %w", err)
	}
	defer rows.Close()

	var duels []*duel.Duel
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duel: %w", err)
		}
		duels = append(duels, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if duels == nil {
		duels = []*duel.Duel{}
	}
	return duels, nil
}

func (s *DuelService) expiredActiveIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM duels
		WHERE status = 'active' AND ends_at <= NOW()
		AND (challenger_id = $1 OR opponent_id = $1)`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired duels: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpiredActiveDuelIDs lists every active duel whose deadline has passed,
// for the sweeper.
func (s *DuelService) ExpiredActiveDuelIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM duels WHERE status = 'active' AND ends_at <= NOW()`)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired duels: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
