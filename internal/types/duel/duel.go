package duel

import (
	"time"

	"github.com/google/uuid"

	"fitFeudAPI/internal/contest"
)

type Type string

const (
	TypeWorkoutCount Type = "workout_count"
	TypeStreak       Type = "streak"
)

func (t Type) Valid() bool {
	return t == TypeWorkoutCount || t == TypeStreak
}

type Duel struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	ChallengerID    uuid.UUID      `json:"challenger_id" db:"challenger_id"`
	OpponentID      uuid.UUID      `json:"opponent_id" db:"opponent_id"`
	Type            Type           `json:"type" db:"duel_type"`
	DurationDays    int            `json:"duration_days" db:"duration_days"`
	Status          contest.Status `json:"status" db:"status"`
	StartedAt       *time.Time     `json:"started_at" db:"started_at"`
	EndsAt          *time.Time     `json:"ends_at" db:"ends_at"`
	ChallengerScore int            `json:"challenger_score" db:"challenger_score"`
	OpponentScore   int            `json:"opponent_score" db:"opponent_score"`
	WinnerID        *uuid.UUID     `json:"winner_id" db:"winner_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

type CreateDuelRequest struct {
	OpponentID   string `json:"opponent_id"`
	Type         Type   `json:"type"`
	DurationDays int    `json:"duration_days"`
}
