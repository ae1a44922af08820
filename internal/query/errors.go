package query

import "errors"

// ErrInvalidDocument — итоговый документ не является JSON.
var ErrInvalidDocument = errors.New("invalid merged document")
