package ports

import "github.com/ghalamif/QuakeFlow/internal/domain"

type SpoolEntryID uint64

// Spool is an append-only durable log of signed payloads awaiting redelivery.
type Spool interface {
	Append(p *domain.SignedPayload) (SpoolEntryID, error)
	Iterate(from SpoolEntryID, fn func(id SpoolEntryID, p *domain.SignedPayload) error) error
	Commit(upto SpoolEntryID) error
	Stats() SpoolStats
	Close() error
}

type SpoolStats struct {
	OldestUncommitted SpoolEntryID
	LatestAppended    SpoolEntryID
	SizeBytes         int64
}
