package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/events"
	"fitFeudAPI/internal/types/competition"
	"fitFeudAPI/internal/types/matchmaking"
)

type MatchmakingService struct {
	db           *pgxpool.Pool
	groups       *GroupService
	competitions *CompetitionService
	bus          *events.Bus
}

func NewMatchmakingService(db *pgxpool.Pool, groups *GroupService, competitions *CompetitionService, bus *events.Bus) *MatchmakingService {
	return &MatchmakingService{db: db, groups: groups, competitions: competitions, bus: bus}
}

func (s *MatchmakingService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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

// Enqueue puts a group on the matchmaking queue. Staff only; a group with
// an open competition or an existing queue entry is rejected. Pairing is
// attempted immediately after a successful enqueue.
func (s *MatchmakingService) Enqueue(ctx context.Context, clerkID string, groupID uuid.UUID) (*matchmaking.QueueStatus, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.groups.RequireStaff(ctx, groupID, userID); err != nil {
		return nil, err
	}

	var busy bool
	openQuery := `
	SELECT EXISTS(
		SELECT 1 FROM competitions
		WHERE status IN ('pending', 'active')
		AND (group1_id = $1 OR group2_id = $1)
	)
	`
	if err := s.db.QueryRow(ctx, openQuery, groupID).Scan(&busy); err != nil {
		return nil, fmt.Errorf("failed to check open competitions: %w", err)
	}
	if busy {
		return nil, apperr.Conflictf("group already has an open competition")
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO matchmaking_queue (group_id, queued_at)
		VALUES ($1, NOW())
		ON CONFLICT (group_id) DO NOTHING`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflictf("group is already queued for matchmaking")
	}

	if _, err := s.TryPair(ctx); err != nil {
		log.Printf("Enqueue: pairing attempt failed: %v", err)
	}

	return s.QueueStatus(ctx, groupID)
}

// Dequeue removes a group's queue entry. Absent entries are a no-op.
func (s *MatchmakingService) Dequeue(ctx context.Context, clerkID string, groupID uuid.UUID) error {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return err
	}
	if err := s.groups.RequireStaff(ctx, groupID, userID); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM matchmaking_queue WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to dequeue group: %w", err)
	}
	return nil
}

// QueueStatus reports whether a group is queued and its FIFO position.
func (s *MatchmakingService) QueueStatus(ctx context.Context, groupID uuid.UUID) (*matchmaking.QueueStatus, error) {
	entry := &matchmaking.QueueEntry{}
	err := s.db.QueryRow(ctx,
		`SELECT group_id, queued_at FROM matchmaking_queue WHERE group_id = $1`, groupID).
		Scan(&entry.GroupID, &entry.QueuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &matchmaking.QueueStatus{Queued: false}, nil
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	var position int
	posQuery := `
	SELECT COUNT(*) + 1 FROM matchmaking_queue
	WHERE queued_at < $1 OR (queued_at = $1 AND group_id < $2)
	`
	if err := s.db.QueryRow(ctx, posQuery, entry.QueuedAt, groupID).Scan(&position); err != nil {
		return nil, fmt.Errorf("failed to compute queue position: %w", err)
	}

	return &matchmaking.QueueStatus{Queued: true, QueuedAt: &entry.QueuedAt, Position: position}, nil
}

// TryPair repeatedly pops the two longest-waiting groups and creates an
// active matchmaking competition for each pair, until fewer than two groups
// remain. Row locks make concurrent invocations safe: a group is removed
// exactly once and never paired against itself.
func (s *MatchmakingService) TryPair(ctx context.Context) ([]*competition.Competition, error) {
	var created []*competition.Competition
	for {
		comp, paired, err := s.pairOnce(ctx)
		if err != nil {
			return created, err
		}
		if !paired {
			return created, nil
		}
		created = append(created, comp)

		s.bus.Publish(events.GroupsMatched, map[string]string{
			"competition_id": comp.ID.String(),
			"group1_id":      comp.Group1ID.String(),
			"group2_id":      comp.Group2ID.String(),
		})
		log.Printf("TryPair: matched groups %s and %s", comp.Group1ID, comp.Group2ID)
	}
}

func (s *MatchmakingService) pairOnce(ctx context.Context) (*competition.Competition, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT group_id FROM matchmaking_queue
		ORDER BY queued_at, group_id
		LIMIT 2
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock queue entries: %w", err)
	}

	var groupIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, false, err
		}
		groupIDs = append(groupIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if len(groupIDs) < 2 {
		return nil, false, nil
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM matchmaking_queue WHERE group_id = ANY($1)`, groupIDs); err != nil {
		return nil, false, fmt.Errorf("failed to remove paired groups: %w", err)
	}

	comp, err := s.competitions.InsertMatch(ctx, tx, groupIDs[0], groupIDs[1])
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit pairing: %w", err)
	}
	return comp, true, nil
}
