package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitFeudAPI/internal/apperr"
	"fitFeudAPI/internal/types/group"
)

// GroupService is the engine's membership/role source. Group administration
// itself lives outside the engine; contests only read roles and rosters.
type GroupService struct {
	db *pgxpool.Pool
}

func NewGroupService(db *pgxpool.Pool) *GroupService {
	return &GroupService{db: db}
}

// GetRole returns the user's role in a group, RoleNone when not a member.
func (s *GroupService) GetRole(ctx context.Context, groupID, userID uuid.UUID) (group.Role, error) {
	var role group.Role
	query := `SELECT role FROM group_members WHERE group_id = $1 AND user_id = $2`
	err := s.db.QueryRow(ctx, query, groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group.RoleNone, nil
		}
		return group.RoleNone, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// RequireStaff returns an AuthorizationError unless the user is owner or
// admin of the group.
func (s *GroupService) RequireStaff(ctx context.Context, groupID, userID uuid.UUID) error {
	role, err := s.GetRole(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !role.Staff() {
		return apperr.Authorizationf("user %s is not staff of group %s", userID, groupID)
	}
	return nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID uuid.UUID) (*group.Group, error) {
	g := &group.Group{}
	query := `SELECT id, name, created_at FROM groups WHERE id = $1`
	err := s.db.QueryRow(ctx, query, groupID).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("group", groupID.String())
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (s *GroupService) ListMembers(ctx context.Context, groupID uuid.UUID) ([]*group.Member, error) {
	query := `
	SELECT gm.user_id, u.username, gm.role, gm.joined_at
	FROM group_members gm
	JOIN users u ON u.id = gm.user_id
	WHERE gm.group_id = $1
	ORDER BY u.username
	`

	rows, err := s.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*group.Member
	for rows.Next() {
		m := &group.Member{}
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return members, nil
}

// UserGroupIDs returns the ids of every group the user belongs to.
func (s *GroupService) UserGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT group_id FROM group_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
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
