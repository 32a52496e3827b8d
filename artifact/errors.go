package artifact

import "fmt"

var (
	// ErrNotFound is returned when no output for the given session / agent
	// pair exists in the store.
	ErrNotFound = fmt.Errorf("artifact not found")
)
