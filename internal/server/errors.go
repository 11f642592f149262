package server

import "fmt"

// StartupError is returned by NewSession when the server cannot be configured or bound
type StartupError struct {
	Op   string
	Addr string
	Err  error
}

func (e *StartupError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("server: %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// StreamError is the Completed error when the payload could not be streamed
type StreamError struct {
	Path    string
	Written int64
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("server: streaming %q failed after %d bytes: %v", e.Path, e.Written, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
