// Package apperr collects the sentinel errors for caller precondition
// violations and allocation failures (both fatal, per the error handling
// design: internal restarts never surface here). Only ErrNilScanCallback
// and ErrNegativeRange are raised by code in this module.
package apperr

import "errors"

var (
	// ErrNilScanCallback is raised when Scan is called with a nil fn.
	ErrNilScanCallback = errors.New("apperr: scan callback must not be nil")

	// ErrNegativeRange is raised when WorkingSet.Touch is given an
	// inverted range (kh < kl).
	ErrNegativeRange = errors.New("apperr: range must be non-negative")

	// ErrAllocationFailed names a failed node allocation. No code in this
	// module raises it.
	ErrAllocationFailed = errors.New("apperr: node allocation failed")

	// ErrOverlappingRange names a candidate range that partially overlaps
	// one already tracked. WorkingSet.Touch reports that case by returning
	// false; it does not return this error.
	ErrOverlappingRange = errors.New("apperr: range overlaps an existing tracked range")

	// ErrPolicyFull names a WorkingSet with no free slot left to allocate.
	// WorkingSet.Touch reports that case by returning false and flagging
	// needs_purge; it does not return this error.
	ErrPolicyFull = errors.New("apperr: working set has no free slot")
)

// Fatal panics wrapping err with msg, used at the few points the design
// calls for process termination on a caller precondition violation.
func Fatal(err error, msg string) {
	panic(Wrap(err, msg))
}
