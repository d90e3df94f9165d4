package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/QuakeFlow/internal/domain"
)

// Receipt carries what the collector answered.
type Receipt struct {
	Status string
}

// Transmitter delivers one signed payload in a single attempt.
type Transmitter interface {
	Send(ctx context.Context, p domain.SignedPayload) (Receipt, error)
	Name() string
}

// IsPermanent reports whether err says the collector will never accept the
// payload, so resending it is pointless.
func IsPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
