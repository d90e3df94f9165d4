package ports

import (
	"context"

	"github.com/ghalamif/QuakeFlow/internal/domain"
)

// Sensor is a synchronous tri-axial accelerometer. Open is awaited once before
// sampling starts; Read errors are transient and the sample is skipped.
type Sensor interface {
	Open(ctx context.Context) error
	Read() (domain.Sample, error)
	Close() error
}
