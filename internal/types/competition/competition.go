package competition

import (
	"time"

	"github.com/google/uuid"

	"fitFeudAPI/internal/contest"
)

type Type string

const (
	TypeMatchmaking Type = "matchmaking"
	TypeChallenge   Type = "challenge"
)

type Competition struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Group1ID      uuid.UUID      `json:"group1_id" db:"group1_id"`
	Group2ID      uuid.UUID      `json:"group2_id" db:"group2_id"`
	Type          Type           `json:"type" db:"comp_type"`
	Status        contest.Status `json:"status" db:"status"`
	StartedAt     *time.Time     `json:"started_at" db:"started_at"`
	EndsAt        *time.Time     `json:"ends_at" db:"ends_at"`
	Group1Score   int64          `json:"group1_score" db:"group1_score"`
	Group2Score   int64          `json:"group2_score" db:"group2_score"`
	WinnerGroupID *uuid.UUID     `json:"winner_group_id" db:"winner_group_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Contribution is one member's accumulated points inside a competition.
// The sum of a group's contributions always equals that group's score.
type Contribution struct {
	CompetitionID uuid.UUID `json:"competition_id" db:"competition_id"`
	GroupID       uuid.UUID `json:"group_id" db:"group_id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Points        int64     `json:"points" db:"points"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// MemberStanding is a row of the in-competition member leaderboard.
// Members with no contribution are included with zero points and rank last.
type MemberStanding struct {
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Username string    `json:"username" db:"username"`
	Points   int64     `json:"points" db:"points"`
	Rank     int       `json:"rank" db:"rank"`
}

// Detail is a competition plus both groups' member boards.
type Detail struct {
	Competition *Competition      `json:"competition"`
	Group1Board []*MemberStanding `json:"group1_board"`
	Group2Board []*MemberStanding `json:"group2_board"`
}

type CreateCompetitionRequest struct {
	Group1ID string `json:"group1_id"`
	Group2ID string `json:"group2_id"`
}
