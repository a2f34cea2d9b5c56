package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, locks and sinks return these
// (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a uniqueness rule rejected the write (e.g. one pending request per subject)
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: lock or backing service could not be reached in time
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
