package domain

// LinkState is the dispatcher's view of uplink readiness.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	TimeSyncing
	Ready
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case TimeSyncing:
		return "TIME_SYNCING"
	case Ready:
		return "READY"
	default:
		return "UNKNOWN"
	}
}
