package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the HTTP layer can map them without knowing the backend.
//
//   - ErrNotFound: the record does not exist in the store
//   - ErrUnavailable: a backing service is temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
