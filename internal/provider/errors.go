package provider

import "fmt"

// Error reports a failed backend call. StatusCode is zero for transport
// failures and malformed or empty payloads.
type Error struct {
	Backend    string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %d: %s", e.Backend, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	default:
		return e.Backend + ": request failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }
