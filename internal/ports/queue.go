package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/QuakeFlow/internal/domain"
)

var ErrQueueClosed = errors.New("quakeflow: event queue closed")

// EventQueue is the bounded hand-off between the detector and the dispatcher.
// Offer never blocks; Take blocks until an event is available or ctx is done.
type EventQueue interface {
	Offer(evt domain.SeismicEvent) bool
	Take(ctx context.Context) (domain.SeismicEvent, error)
	Len() int
	Dropped() uint64
}
