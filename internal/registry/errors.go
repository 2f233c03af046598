package registry

import (
	"errors"
	"fmt"
)

// ErrOutsideRoot is wrapped by RegistryError when a path is not under the watch root.
var ErrOutsideRoot = errors.New("path is outside the watch root")

// RegistryError reports a failed lookup or insert against the store.
type RegistryError struct {
	Op   string // "lookup", "insert", "resolve"
	Path string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}
