package sentinel

import "errors"

// ErrNotFound is returned, optionally wrapped, by stores when a key has no
// entry. Callers check it with errors.Is.
var ErrNotFound = errors.New("not found")
