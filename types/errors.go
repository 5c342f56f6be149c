package types

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is matched by every StorageError.
var ErrStorageUnavailable = errors.New("tollgate: storage unavailable")

// StorageError wraps a backing-store failure. It is the only retryable
// error kind: callers treat it as "try again later", never as a denial
// of the request on its merits.
type StorageError struct {
	Op  string
	Err error
}

// WrapStorage returns nil for a nil err and a *StorageError otherwise.
// An err that already is a StorageError is returned unchanged.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tollgate: storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}
