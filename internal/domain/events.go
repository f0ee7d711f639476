package domain

import "time"

// ============================================================
// Snapshot lifecycle events
// ============================================================

// EventType names a refresh lifecycle transition.
type EventType string

const (
	EventLoading   EventType = "loading"
	EventPublished EventType = "published"
	EventFailed    EventType = "failed"
	EventDiscarded EventType = "discarded"
)

// SnapshotEvent is emitted by a refresh coordinator to its subscribers and
// published to the broker. Summary is only set on EventPublished.
type SnapshotEvent struct {
	Type             EventType       `json:"type"`
	SessionID        string          `json:"sessionId"`
	Trigger          string          `json:"trigger,omitempty"`
	Seq              uint64          `json:"seq"`
	Summary          *RoundedSummary `json:"summary,omitempty"`
	TransactionCount int             `json:"transactionCount"`
	Dropped          int             `json:"dropped"`
	Error            string          `json:"error,omitempty"`
	At               time.Time       `json:"at"`
}
