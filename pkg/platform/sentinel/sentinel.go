package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Caches and backends return these
// (optionally wrapped) so callers can branch with errors.Is:
// - ErrNotFound: entry does not exist in the backing store
// - ErrUnavailable: backing store temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
