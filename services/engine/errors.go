package engine

import "fmt"

// DataError marks a rejected bar: malformed fields or a timestamp that
// does not advance the series. The simulation absorbs these into the
// skipped-bar count instead of aborting.
type DataError struct {
	Ts     int64
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad bar at %d: %s", e.Ts, e.Reason)
}

// ExecutionError wraps a failure from the external execution capability.
// The attempted state change is rolled back and the loop continues.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
