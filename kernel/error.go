package kernel

// Error is the error type shared by the loader and the kernel. Errors are
// declared as package-level pointers so that returning or panicking with one
// never touches the allocator; large parts of the code run before a heap
// exists or inside interrupt handlers.
type Error struct {
	// Module names the package that reported the error.
	Module string

	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
