package ledger

import "errors"

// ErrInvalidEntry is returned when an entry fails validation before any
// write is attempted.
var ErrInvalidEntry = errors.New("invalid ledger entry")
