package bench

import "errors"

// Sentinel errors returned by domain operations, matching the error-kind
// taxonomy in spec.md §7. Callers distinguish them with errors.Is; schema
// failures are distinguished separately via schema.ErrSchemaViolation,
// which domain operations pass through unwrapped.
var (
	// ErrUnknownSubject is returned when an operation addresses a uid/fid
	// not present in up_by_fid / up_info.
	ErrUnknownSubject = errors.New("bench: unknown subject")

	// ErrUnknownGroup is returned when an operation addresses a gid not
	// present in group_info / up_join_group.
	ErrUnknownGroup = errors.New("bench: unknown group")
)
