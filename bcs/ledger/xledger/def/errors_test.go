package def

import (
	"errors"
	"testing"
)

func TestNormalizedKVError(t *testing.T) {
	if err := NormalizedKVError(errors.New("leveldb: not found")); err != ErrKVNotFound {
		t.Errorf("leveldb miss: %v", err)
	}
	if err := NormalizedKVError(errors.New("Key not found")); err != ErrKVNotFound {
		t.Errorf("badger miss: %v", err)
	}
	other := errors.New("invalid stream")
	if err := NormalizedKVError(other); err != other {
		t.Errorf("other error changed: %v", err)
	}
	if NormalizedKVError(nil) != nil {
		t.Error("nil changed")
	}
}
