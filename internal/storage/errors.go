package storage

import "errors"

// ErrNotFound is returned when a requested row does not exist or is not
// owned by the caller. The two cases are deliberately indistinguishable
// so a caller cannot enumerate other users' rows.
var ErrNotFound = errors.New("storage: not found")
