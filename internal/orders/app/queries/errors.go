package queries

import "errors"

// ErrInvalidQuery marks malformed list parameters.
var ErrInvalidQuery = errors.New("invalid query")
