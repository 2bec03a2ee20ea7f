package gimbal

import "fmt"

// TransportError wraps a failure to reach or complete a call against the
// remote configuration store. Business rejections are never transport
// errors; they surface as Outcome values.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed input caught before any network
// traffic: an unknown patch key, a type mismatch, or a bad request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
