package ports

import "time"

// Queue overflow policies.
const (
	DropNewest = "drop_newest"
	DropOldest = "drop_oldest"
)

// Dispatch policies.
const (
	OnFailureDrop  = "drop"
	OnFailureSpool = "spool"

	UnsyncedHold = "hold"
	UnsyncedDrop = "drop"
)

type Policy struct {
	QueueCapacity int
	OnQueueFull   string // "drop_newest", "drop_oldest"

	OnDispatchFailure string // "drop", "spool"
	UnsyncedPolicy    string // "hold", "drop"

	MaxSpoolBytes     int64
	ReconnectBackoff  time.Duration
	SyncBackoff       time.Duration
	LinkCheckInterval time.Duration
	SignAttempts      int
}
