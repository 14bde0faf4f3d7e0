// Package errs holds the error kinds shared by the import, scraping, warehouse and betting layers.
// Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
package errs

import "errors"

var (
	// ErrUpstreamUnavailable is a network failure, timeout or non-2xx/404 status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamAbsent means the resource does not exist upstream (404).
	ErrUpstreamAbsent = errors.New("upstream resource absent")
	// ErrCodecUnsupported is an archive frame method the decoder cannot read.
	ErrCodecUnsupported = errors.New("archive codec unsupported")
	// ErrParseMalformed marks input that does not fit the expected grammar.
	ErrParseMalformed = errors.New("malformed input")
	// ErrDataMissing is returned when a required program or odds row is absent.
	ErrDataMissing = errors.New("data missing")
	// ErrDeadlinePassed is returned when a decision is attempted after the deadline.
	ErrDeadlinePassed = errors.New("deadline passed")
	// ErrWarehouseTransient marks retryable database failures.
	ErrWarehouseTransient = errors.New("warehouse transient failure")
	// ErrRuleOutOfRange is a strategy predicate that did not admit the bet.
	ErrRuleOutOfRange = errors.New("rule out of range")
	// ErrNotFound is a missing warehouse row.
	ErrNotFound = errors.New("not found")
	// ErrStaleTransition means a bet was no longer in the expected status.
	ErrStaleTransition = errors.New("stale bet transition")
)
