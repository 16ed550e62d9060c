package feed

import "errors"

// Sentinel errors shared by the store, registry and trigger paths.
var (
	// ErrNotFound is returned for any missing entity.
	ErrNotFound = errors.New("not found")
	// ErrSourceInactive refuses acquisition of a disabled source.
	ErrSourceInactive = errors.New("source is inactive")
	// ErrSourceRunning refuses acquisition while a run is in flight.
	ErrSourceRunning = errors.New("source is already running")
	// ErrEndpointGone classifies a permanently dead push endpoint.
	ErrEndpointGone = errors.New("push endpoint gone")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("already exists")
)
