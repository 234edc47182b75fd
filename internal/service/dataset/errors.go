package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers transport failures and non-2xx responses from the source
	ErrNetwork = errors.New("dataset: network error")
	// ErrMalformed means a page could not be decoded or is inconsistent with its meta
	ErrMalformed = errors.New("dataset: malformed page")
)

// SyncError is returned by a failed remote fetch. Kind is ErrNetwork or ErrMalformed.
type SyncError struct {
	Kind error
	Page int
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%v (page %d): %v", e.Kind, e.Page, e.Err)
}

// Is matches the error kind, so errors.Is(err, ErrNetwork) works on wrapped SyncErrors
func (e *SyncError) Is(target error) bool {
	return target == e.Kind
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
