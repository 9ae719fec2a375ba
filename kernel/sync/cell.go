package sync

import (
	"sync/atomic"

	"kestrel/kernel"
)

var (
	// ErrCellAlreadySet is raised when a Cell is written a second time.
	ErrCellAlreadySet = &kernel.Error{Module: "sync", Message: "late-init cell written twice"}

	// ErrCellNotSet is raised when a Cell is read before being written.
	ErrCellNotSet = &kernel.Error{Module: "sync", Message: "late-init cell read before initialization"}
)

// Cell is a single-assignment container for process-wide state that can only
// be built after boot, such as the kernel arguments or the framebuffer
// console. It is written exactly once and may be read any number of times
// afterwards without locking.
type Cell[T any] struct {
	ready uint32
	value T
}

// Set stores val in the cell. It panics with ErrCellAlreadySet if the cell has
// already been written.
func (c *Cell[T]) Set(val T) {
	if atomic.LoadUint32(&c.ready) != 0 {
		panic(ErrCellAlreadySet)
	}

	c.value = val
	atomic.StoreUint32(&c.ready, 1)
}

// Get returns a pointer to the stored value. It panics with ErrCellNotSet if
// Set has not been called yet.
func (c *Cell[T]) Get() *T {
	if atomic.LoadUint32(&c.ready) == 0 {
		panic(ErrCellNotSet)
	}

	return &c.value
}

// Ready returns true once Set has been called.
func (c *Cell[T]) Ready() bool {
	return atomic.LoadUint32(&c.ready) != 0
}
