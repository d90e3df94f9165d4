package ports

import "context"

// Link is the network association interface.
type Link interface {
	// Connect blocks until the link is associated or ctx is done.
	Connect(ctx context.Context) error
	Connected() bool
}
