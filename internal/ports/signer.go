package ports

// Signer produces a hex-encoded signature over a message.
type Signer interface {
	Sign(message string) (string, error)
}
