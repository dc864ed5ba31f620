package directory

import "errors"

// ErrNotFound is returned when an operation addresses a registration that
// does not exist, e.g. one that has already expired or been removed.
var ErrNotFound = errors.New("registration not found")

// ErrValidation is returned when the caller supplies invalid input:
// missing mandatory fields, malformed integers or context URIs, or
// over-long endpoint/domain names. It maps to a client-error response.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
