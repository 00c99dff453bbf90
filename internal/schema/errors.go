package schema

import "errors"

// ErrSchemaViolation is wrapped by Validate's returned error so callers
// can distinguish schema failures from other domain errors with errors.Is.
var ErrSchemaViolation = errors.New("schema violation")
