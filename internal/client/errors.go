package client

import "fmt"

// TransportError is a connection-level failure: the dial failed or the
// established channel broke. The client is Disconnected when one is reported.
type TransportError struct {
	Op  string // "dial", "read" or "write"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
