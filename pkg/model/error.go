package model

import (
	"github.com/pkg/errors"
)

// Checkpoint errors
var (
	// ErrStorage is returned when the checkpoint store cannot be created, opened, read or written.
	ErrStorage = errors.New("checkpoint storage error")
	// ErrCorruptState is returned when the stored checkpoint is not a non-negative integer.
	ErrCorruptState = errors.New("corrupt checkpoint state")
	// ErrCheckpointNotFound is returned when loading a checkpoint that has never been created.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointExists is returned when creating a checkpoint that already exists.
	ErrCheckpointExists = errors.New("checkpoint already exists")
)

// KV errors
var (
	// ErrKVTxnFailed is returned when etcd transaction failed.
	ErrKVTxnFailed = errors.New("etcd transaction failed")
)

// Allocator errors
var (
	// ErrIDExhausted is returned when the next reservation would overflow uint64.
	ErrIDExhausted = errors.New("id space exhausted")
	// ErrAllocatorNotInitialized is returned when allocating from an allocator before Init.
	ErrAllocatorNotInitialized = errors.New("allocator not initialized")
	// ErrAllocatorInitialized is returned when Init is called more than once.
	ErrAllocatorInitialized = errors.New("allocator already initialized")
	// ErrTooManyIDs is returned when more ids are requested in one call than MaxAllocN.
	ErrTooManyIDs = errors.New("too many ids requested")
)

// Server errors
var (
	// ErrServerStarted is returned when starting a server which is already started.
	ErrServerStarted = errors.New("server already started")
	// ErrServerNotStarted is returned when using a server before it is started.
	ErrServerNotStarted = errors.New("server not started")
)

type markedError struct {
	mark  error
	cause error
}

// Mark returns an error that wraps err and also matches mark under errors.Is.
// It returns nil if err is nil.
func Mark(err error, mark error) error {
	if err == nil {
		return nil
	}
	return &markedError{mark: mark, cause: err}
}

func (e *markedError) Error() string {
	return e.mark.Error() + ": " + e.cause.Error()
}

func (e *markedError) Cause() error {
	return e.cause
}

func (e *markedError) Unwrap() error {
	return e.cause
}

func (e *markedError) Is(target error) bool {
	return target == e.mark
}
