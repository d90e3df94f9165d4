package ports

import (
	"context"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/domain"
)

// Dispatch outcomes recorded in the archive.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSpooled = "spooled"
	OutcomeReplay  = "replayed"
)

type ArchiveRecord struct {
	BootID     string
	Payload    domain.SignedPayload
	Outcome    string
	Detail     string
	RecordedAt time.Time
}

// Archive keeps a local or remote record of every dispatch attempt.
type Archive interface {
	Record(ctx context.Context, rec ArchiveRecord) error
	Name() string
	Close() error
}
