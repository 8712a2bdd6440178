package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is the sentinel matched by every InvalidArgumentError.
var ErrInvalidArgument = errors.New("invalid cache key argument")

// InvalidArgumentError reports an argument that has no canonical string form,
// such as a nil value or a func. Path locates nested values (e.g. "[1].Owner").
type InvalidArgumentError struct {
	Operation string
	Index     int
	Path      string
	Reason    string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	loc := fmt.Sprintf("arg %d", e.Index)
	if e.Path != "" {
		loc += " at " + e.Path
	}
	return fmt.Sprintf("cache key %q: %s: %s", e.Operation, loc, e.Reason)
}

// Is allows errors.Is(err, ErrInvalidArgument).
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// IsInvalidArgument reports whether err carries an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// TypeMismatchError is returned by GetOrFetch when the stored value does not
// have the requested type, usually because two call sites share a key.
type TypeMismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cache key %q holds %s, want %s", e.Key, e.Got, e.Want)
}
