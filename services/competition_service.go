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
	"fitFeudAPI/internal/types/competition"
)

const competitionColumns = `id, group1_id, group2_id, comp_type, status, started_at, ends_at,
	group1_score, group2_score, winner_group_id, created_at, updated_at`

type CompetitionService struct {
	db     *pgxpool.Pool
	groups *GroupService
	bus    *events.Bus
}

func NewCompetitionService(db *pgxpool.Pool, groups *GroupService, bus *events.Bus) *CompetitionService {
	return &CompetitionService{db: db, groups: groups, bus: bus}
}

func (s *CompetitionService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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

func scanCompetition(row pgx.Row) (*competition.Competition, error) {
	c := &competition.Competition{}
	err := row.Scan(
		&c.ID,
		&c.Group1ID,
		&c.Group2ID,
		&c.Type,
		&c.Status,
		&c.StartedAt,
		&c.EndsAt,
		&c.Group1Score,
		&c.Group2Score,
		&c.WinnerGroupID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CompetitionService) loadCompetition(ctx context.Context, compID uuid.UUID) (*competition.Competition, error) {
	query := fmt.Sprintf(`SELECT %s FROM competitions WHERE id = $1`, competitionColumns)
	c, err := scanCompetition(s.db.QueryRow(ctx, query, compID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("competition", compID.String())
		}
		return nil, fmt.Errorf("failed to load competition: %w", err)
	}
	return c, nil
}

func (s *CompetitionService) checkNoOpenCompetition(ctx context.Context, group1ID, group2ID uuid.UUID) error {
	var open bool
	query := `
	SELECT EXISTS(
		SELECT 1 FROM competitions
		WHERE status IN ('pending', 'active')
		AND ((group1_id = $1 AND group2_id = $2)
		  OR (group1_id = $2 AND group2_id = $1))
	)
	`
	if err := s.db.QueryRow(ctx, query, group1ID, group2ID).Scan(&open); err != nil {
		return fmt.Errorf("failed to check open competitions: %w", err)
	}
	if open {
		return apperr.Conflictf("an open competition already exists between these groups")
	}
	return nil
}

// CreateChallenge opens a pending challenge-type competition. The acting
// user must be staff of the challenging group; the challenged group's staff
// accepts it later.
func (s *CompetitionService) CreateChallenge(ctx context.Context, clerkID string, group1ID, group2ID uuid.UUID) (*competition.Competition, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if group1ID == group2ID {
		return nil, apperr.Conflictf("a group cannot challenge itself")
	}
	if _, err := s.groups.GetGroup(ctx, group1ID); err != nil {
		return nil, err
	}
	if _, err := s.groups.GetGroup(ctx, group2ID); err != nil {
		return nil, err
	}
	if err := s.groups.RequireStaff(ctx, group1ID, userID); err != nil {
		return nil, err
	}
	if err := s.checkNoOpenCompetition(ctx, group1ID, group2ID); err != nil {
		return nil, err
	}

	insertQuery := fmt.Sprintf(`
	INSERT INTO competitions (id, group1_id, group2_id, comp_type, status, created_at, updated_at)
	VALUES ($1, $2, $3, 'challenge', 'pending', NOW(), NOW())
	RETURNING %s`, competitionColumns)

	c, err := scanCompetition(s.db.QueryRow(ctx, insertQuery, uuid.New(), group1ID, group2ID))
	if err != nil {
		return nil, fmt.Errorf("failed to create competition: %w", err)
	}

	log.Printf("CreateChallenge: group %s challenged group %s", group1ID, group2ID)
	return c, nil
}

// InsertMatch creates an already-active matchmaking competition inside the
// caller's transaction, so pairing and creation commit atomically.
func (s *CompetitionService) InsertMatch(ctx context.Context, tx pgx.Tx, group1ID, group2ID uuid.UUID) (*competition.Competition, error) {
	insertQuery := fmt.Sprintf(`
	INSERT INTO competitions (id, group1_id, group2_id, comp_type, status, started_at, ends_at, created_at, updated_at)
	VALUES ($1, $2, $3, 'matchmaking', 'active', NOW(), NOW() + make_interval(days => $4), NOW(), NOW())
	RETURNING %s`, competitionColumns)

	c, err := scanCompetition(tx.QueryRow(ctx, insertQuery, uuid.New(), group1ID, group2ID, contest.CompetitionDurationDays))
	if err != nil {
		return nil, fmt.Errorf("failed to create matchmaking competition: %w", err)
	}
	return c, nil
}

// AcceptCompetition activates a pending challenge. Only staff of the
// challenged group may accept.
func (s *CompetitionService) AcceptCompetition(ctx context.Context, compID uuid.UUID, clerkID string) (*competition.Competition, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	c, err := s.loadCompetition(ctx, compID)
	if err != nil {
		return nil, err
	}
	if err := s.groups.RequireStaff(ctx, c.Group2ID, userID); err != nil {
		return nil, err
	}

	updateQuery := fmt.Sprintf(`
	UPDATE competitions
	SET status = 'active',
		started_at = NOW(),
		ends_at = NOW() + make_interval(days => $2),
		updated_at = NOW()
	WHERE id = $1 AND status = 'pending'
	RETURNING %s`, competitionColumns)

	updated, err := scanCompetition(s.db.QueryRow(ctx, updateQuery, compID, contest.CompetitionDurationDays))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.InvalidStatef("competition is %s, only a pending competition can be accepted", c.Status)
		}
		return nil, fmt.Errorf("failed to accept competition: %w", err)
	}

	s.bus.Publish(events.CompetitionAccepted, map[string]string{
		"competition_id": updated.ID.String(),
		"group1_id":      updated.Group1ID.String(),
		"group2_id":      updated.Group2ID.String(),
	})
	return updated, nil
}

// CancelCompetition withdraws a pending challenge. Staff of either group
// may cancel; active competitions run to their deadline.
func (s *CompetitionService) CancelCompetition(ctx context.Context, compID uuid.UUID, clerkID string) (*competition.Competition, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	c, err := s.loadCompetition(ctx, compID)
	if err != nil {
		return nil, err
	}

	if err := s.groups.RequireStaff(ctx, c.Group1ID, userID); err != nil {
		if err2 := s.groups.RequireStaff(ctx, c.Group2ID, userID); err2 != nil {
			return nil, apperr.Authorizationf("only staff of either group may cancel this competition")
		}
	}

	updateQuery := fmt.Sprintf(`
	UPDATE competitions SET status = 'cancelled', updated_at = NOW()
	WHERE id = $1 AND status = 'pending'
	RETURNING %s`, competitionColumns)

	updated, err := scanCompetition(s.db.QueryRow(ctx, updateQuery, compID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.InvalidStatef("competition is %s, only a pending competition can be cancelled", c.Status)
		}
		return nil, fmt.Errorf("failed to cancel competition: %w", err)
	}

	s.bus.Publish(events.CompetitionCancelled, map[string]string{"competition_id": updated.ID.String()})
	return updated, nil
}

// RecordContribution credits delta points to a member and the parent group
// score in one transaction, so the per-group contribution sum always equals
// the group's score.
func (s *CompetitionService) RecordContribution(ctx context.Context, compID, groupID, userID uuid.UUID, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("contribution delta must be positive, got %d", delta)
	}

	c, err := s.loadCompetition(ctx, compID)
	if err != nil {
		return err
	}

	var scoreColumn string
	switch groupID {
	case c.Group1ID:
		scoreColumn = "group1_score"
	case c.Group2ID:
		scoreColumn = "group2_score"
	default:
		return apperr.NotFound("group", groupID.String())
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	scoreQuery := fmt.Sprintf(`
	UPDATE competitions SET %s = %s + $2, updated_at = NOW()
	WHERE id = $1 AND status = 'active'`, scoreColumn, scoreColumn)

	tag, err := tx.Exec(ctx, scoreQuery, compID, delta)
	if err != nil {
		return fmt.Errorf("failed to increment group score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidStatef("competition is not active, contributions are closed")
	}

	contributionQuery := `
	INSERT INTO competition_contributions (competition_id, group_id, user_id, points, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (competition_id, user_id) DO UPDATE SET
		points = competition_contributions.points + EXCLUDED.points,
		updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, contributionQuery, compID, groupID, userID, delta); err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit contribution: %w", err)
	}
	return nil
}

// RecordActivityContribution credits delta points to every active
// competition of every group the user belongs to. Returns the number of
// contributions recorded.
func (s *CompetitionService) RecordActivityContribution(ctx context.Context, userID uuid.UUID, delta int64) (int, error) {
	query := `
	SELECT c.id, gm.group_id
	FROM competitions c
	JOIN group_members gm ON gm.group_id IN (c.group1_id, c.group2_id)
	WHERE gm.user_id = $1 AND c.status = 'active'
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active competitions: %w", err)
	}
	defer rows.Close()

	type target struct {
		compID  uuid.UUID
		groupID uuid.UUID
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.compID, &t.groupID); err != nil {
			return 0, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	recorded := 0
	for _, t := range targets {
		if err := s.RecordContribution(ctx, t.compID, t.groupID, userID, delta); err != nil {
			var invalid *apperr.InvalidStateError
			if errors.As(err, &invalid) {
				// Finalized between listing and recording; nothing to credit.
				continue
			}
			log.Printf("RecordActivityContribution: competition %s: %v", t.compID, err)
			continue
		}
		recorded++
	}
	return recorded, nil
}

// MemberStandings ranks one group's members by contribution inside a
// competition. Members without a contribution are included with zero points
// and rank last.
func (s *CompetitionService) MemberStandings(ctx context.Context, compID, groupID uuid.UUID) ([]*competition.MemberStanding, error) {
	query := `
	SELECT gm.user_id, u.username, COALESCE(cc.points, 0) AS points
	FROM group_members gm
	JOIN users u ON u.id = gm.user_id
	LEFT JOIN competition_contributions cc
		ON cc.competition_id = $1 AND cc.user_id = gm.user_id AND cc.group_id = $2
	WHERE gm.group_id = $2
	ORDER BY points DESC, u.username ASC
	`

	rows, err := s.db.Query(ctx, query, compID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member standings: %w", err)
	}
	defer rows.Close()

	var standings []*competition.MemberStanding
	for rows.Next() {
		st := &competition.MemberStanding{}
		if err := rows.Scan(&st.UserID, &st.Username, &st.Points); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		st.Rank = len(standings) + 1
		standings = append(standings, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if standings == nil {
		standings = []*competition.MemberStanding{}
	}
	return standings, nil
}

// FinalizeIfExpired completes an active competition past its deadline,
// freezing scores and setting the winning group (nil on a tie). No-op on
// anything not active or not yet expired.
func (s *CompetitionService) FinalizeIfExpired(ctx context.Context, compID uuid.UUID) (*competition.Competition, bool, error) {
	c, err := s.loadCompetition(ctx, compID)
	if err != nil {
		return nil, false, err
	}
	if c.Status != contest.StatusActive || c.EndsAt == nil {
		return c, false, nil
	}
	if !contest.Expired(*c.EndsAt, time.Now()) {
		return c, false, nil
	}

	var winnerGroupID *uuid.UUID
	switch contest.WinnerIndex(c.Group1Score, c.Group2Score) {
	case 1:
		winnerGroupID = &c.Group1ID
	case 2:
		winnerGroupID = &c.Group2ID
	}

	updateQuery := fmt.Sprintf(`
	UPDATE competitions
	SET status = 'completed', winner_group_id = $2, updated_at = NOW()
	WHERE id = $1 AND status = 'active'
	RETURNING %s`, competitionColumns)

	updated, err := scanCompetition(s.db.QueryRow(ctx, updateQuery, compID, winnerGroupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c, err := s.loadCompetition(ctx, compID)
			return c, false, err
		}
		return nil, false, fmt.Errorf("failed to finalize competition: %w", err)
	}

	data := map[string]string{"competition_id": updated.ID.String()}
	if updated.WinnerGroupID != nil {
		data["winner_group_id"] = updated.WinnerGroupID.String()
	}
	s.bus.Publish(events.CompetitionCompleted, data)

	log.Printf("FinalizeIfExpired: competition %s completed %d-%d", updated.ID, updated.Group1Score, updated.Group2Score)
	return updated, true, nil
}

// GetCompetition loads a competition with both groups' member boards,
// opportunistically finalizing it when expired.
func (s *CompetitionService) GetCompetition(ctx context.Context, compID uuid.UUID) (*competition.Detail, error) {
	c, err := s.loadCompetition(ctx, compID)
	if err != nil {
		return nil, err
	}
	if c.Status == contest.StatusActive && c.EndsAt != nil && contest.Expired(*c.EndsAt, time.Now()) {
		c, _, err = s.FinalizeIfExpired(ctx, compID)
		if err != nil {
			return nil, err
		}
	}

	board1, err := s.MemberStandings(ctx, compID, c.Group1ID)
	if err != nil {
		return nil, err
	}
	board2, err := s.MemberStandings(ctx, compID, c.Group2ID)
	if err != nil {
		return nil, err
	}

	return &competition.Detail{Competition: c, Group1Board: board1, Group2Board: board2}, nil
}

// ListForUser returns competitions involving any of the caller's groups,
// newest first.
func (s *CompetitionService) ListForUser(ctx context.Context, clerkID string) ([]*competition.Competition, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT %s FROM competitions
	WHERE group1_id IN (SELECT group_id FROM group_members WHERE user_id = $1)
	   OR group2_id IN (SELECT group_id FROM group_members WHERE user_id = $1)
	ORDER BY created_at DESC
	LIMIT 50`, competitionColumns)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	defer rows.Close()

	var comps []*competition.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan competition: %w", err)
		}
		comps = append(comps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if comps == nil {
		comps = []*competition.Competition{}
	}
	return comps, nil
}

// ExpiredActiveCompetitionIDs lists active competitions past their deadline,
// for the sweeper.
func (s *CompetitionService) ExpiredActiveCompetitionIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM competitions WHERE status = 'active' AND ends_at <= NOW()`)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired competitions: %w", err)
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
