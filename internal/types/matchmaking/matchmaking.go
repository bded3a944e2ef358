package matchmaking

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is a group waiting for an opponent. FIFO by QueuedAt, ties
// broken by group id.
type QueueEntry struct {
	GroupID  uuid.UUID `json:"group_id" db:"group_id"`
	QueuedAt time.Time `json:"queued_at" db:"queued_at"`
}

type QueueStatus struct {
	Queued   bool       `json:"queued"`
	QueuedAt *time.Time `json:"queued_at,omitempty"`
	Position int        `json:"position,omitempty"`
}

type QueueRequest struct {
	GroupID string `json:"group_id"`
}
