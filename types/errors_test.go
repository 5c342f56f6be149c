package types

import (
	"context"
	"errors"
	"testing"
)

func TestWrapStorage(t *testing.T) {
	if WrapStorage("op", nil) != nil {
		t.Fatal("nil error must stay nil")
	}

	err := WrapStorage("increment usage", context.DeadlineExceeded)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected ErrStorageUnavailable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be preserved")
	}

	again := WrapStorage("outer", err)
	var se *StorageError
	if !errors.As(again, &se) || se.Op != "increment usage" {
		t.Errorf("expected inner storage error to be kept, got %v", again)
	}
}
