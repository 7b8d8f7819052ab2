// Package runlock prevents two batches for the same assignment from running
// at once on one host.
package runlock

import "errors"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("assignment is already being graded")
