package relay

// State is the orchestrator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateBackfillScanning
	StatePolling
	StateReconnectingBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateBackfillScanning:
		return "backfill_scanning"
	case StatePolling:
		return "polling"
	case StateReconnectingBackoff:
		return "reconnecting_backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
