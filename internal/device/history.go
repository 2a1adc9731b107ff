package device

import (
	"context"
	"time"
)

// History change sources.
const (
	// HistorySourceDevice marks transitions observed from the receiver.
	HistorySourceDevice = "device"

	// HistorySourceReset marks invalidations on connect/disconnect.
	HistorySourceReset = "reset"
)

// HistoryEntry is one recorded state transition.
type HistoryEntry struct {
	ID        int64
	Property  string
	Value     string
	Known     bool
	Source    string
	CreatedAt time.Time
}

// HistoryRepository persists observed state transitions.
//
// The history is an append-only audit trail for diagnostics; it is never
// read back into the live mirror, which always starts all-Unknown.
type HistoryRepository interface {
	// RecordChange appends one transition.
	RecordChange(ctx context.Context, property, value string, known bool, source string) error

	// GetHistory returns recent transitions for a property, newest first.
	GetHistory(ctx context.Context, property string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries older than the given retention duration and
	// returns the number removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
