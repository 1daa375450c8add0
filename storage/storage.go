// Package storage provides the disk primitives used across ytbulk (atomic
// file replacement and advisory locking) and persists the normalized video
// catalog as a JSON backup.
package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrStorageCorrupt indicates a file exists but could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps disk failures with operation context. It is the IOError
// kind surfaced by the credential store, the thumbnail cache and the backup
// gateway.
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Path, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "copy", "delete", "lock").
	Op string
	// Entity is what was being operated on ("catalog", "credentials", "token", "thumbnail").
	Entity string
	// Path is the file involved, if any.
	Path string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.Path, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }
