package gimbal

// State represents the current state of a Store.
type State int32

const (
	// StateLoading indicates the Store has not yet completed its first
	// refresh; Get returns the default document.
	StateLoading State = iota

	// StateHealthy indicates the snapshot matches the last authoritative
	// fetch and no update is outstanding in a failed condition.
	StateHealthy

	// StateDegraded indicates the last update or refresh failed and was
	// rolled back. The re-fetched (or previous) snapshot remains active and
	// the Store stays fully usable.
	StateDegraded

	// StateEmpty indicates the initial refresh failed and no authoritative
	// document has ever been obtained. The default document is served until
	// a refresh succeeds.
	StateEmpty
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}
