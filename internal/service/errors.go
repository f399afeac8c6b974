package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers missing tasks and missing attachment rows.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned by login glue.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAttachmentNotOwned is returned when a deleted_attachments id
	// does not belong to the task being updated. The request is
	// rejected, not silently trimmed.
	ErrAttachmentNotOwned = errors.New("attachment does not belong to this task")
)

// StorageError wraps a blob store failure. Before commit it is fatal to
// the request and rolls the transaction back.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
