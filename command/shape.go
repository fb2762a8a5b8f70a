package command

// Shape is the call signature family of a command, function or event.
type Shape int

const (
	// ShapeVoid takes no argument and returns nothing.
	ShapeVoid Shape = iota
	// ShapeVoidReturn takes no argument and returns a result.
	ShapeVoidReturn
	// ShapeWrite takes one argument and returns nothing.
	ShapeWrite
	// ShapeWriteReturn takes one argument and returns a result.
	ShapeWriteReturn
	// ShapeRead returns a snapshot of server state without modifying it.
	ShapeRead
	// ShapeQualifiedRead returns a result derived from the argument and server state.
	ShapeQualifiedRead
)

var shapeNames = map[Shape]string{
	ShapeVoid:          "Void",
	ShapeVoidReturn:    "VoidReturn",
	ShapeWrite:         "Write",
	ShapeWriteReturn:   "WriteReturn",
	ShapeRead:          "Read",
	ShapeQualifiedRead: "QualifiedRead",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "Unknown"
}

// HasArgument reports whether callers pass an argument.
func (s Shape) HasArgument() bool {
	return s == ShapeWrite || s == ShapeWriteReturn || s == ShapeQualifiedRead
}

// HasResult reports whether callers receive a result.
func (s Shape) HasResult() bool {
	return s == ShapeVoidReturn || s == ShapeWriteReturn || s == ShapeRead || s == ShapeQualifiedRead
}

// QueuedByDefault reports whether commands of this shape go through the owner's
// mailbox unless registered otherwise. Reads touch state that is safe to
// sample from any goroutine (state tables), so they run in the caller.
func (s Shape) QueuedByDefault() bool {
	return s != ShapeRead && s != ShapeQualifiedRead
}
