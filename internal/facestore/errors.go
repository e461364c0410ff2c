package facestore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user_id is not enrolled.
	ErrNotFound = errors.New("user not found")

	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotLoaded is returned by operations on a store that has not been
	// loaded successfully.
	ErrNotLoaded = errors.New("face store not loaded")

	// ErrInvalidRecord is returned for malformed user IDs, metadata or
	// embedding values.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnsupportedVersion is wrapped by CorruptStoreError when the file
	// was written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported store format version")

	// ErrLocked is returned by Load when another process owns the store.
	ErrLocked = errors.New("face store is in use by another process")

	// ErrReadOnly is returned by mutations on a store opened read-only.
	ErrReadOnly = errors.New("face store is opened read-only")
)

// DimensionMismatchError indicates an embedding whose length differs from
// the store-wide dimensionality.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// CorruptStoreError is returned by Load when the durable file exists but
// cannot be accepted. The store stays unusable afterwards.
type CorruptStoreError struct {
	Path  string
	cause error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt face store %s: %v", e.Path, e.cause)
}

func (e *CorruptStoreError) Unwrap() error { return e.cause }

// PersistenceError is returned when writing the durable file fails. The
// in-memory state is left untouched.
type PersistenceError struct {
	Path  string
	cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting face store %s: %v", e.Path, e.cause)
}

func (e *PersistenceError) Unwrap() error { return e.cause }
