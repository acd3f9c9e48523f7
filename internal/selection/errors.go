package selection

import "fmt"

// ValidationError reports malformed or logically inconsistent input, with the
// offending field so callers can render a precise message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidInputError reports structurally valid input that is missing data the
// chosen algorithm requires. Nothing is ever defaulted in its place.
type InvalidInputError struct {
	Field string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("missing required input %s", e.Field)
}

// InvalidStateError reports an operation that is not legal from the current
// process or turn state.
type InvalidStateError struct {
	Op     string
	Status string
	Reason string
}

func (e InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not allowed in status %s: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s not allowed in status %s", e.Op, e.Status)
}
