package builds

import (
	"errors"
	"fmt"
)

// ErrNotFound means no candidate artifact exists, even after the unfiltered
// fallback.
var ErrNotFound = errors.New("no build artifact found")

// IOError reports that the artifact directory or one of its entries could not
// be read. It is never collapsed into ErrNotFound.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
