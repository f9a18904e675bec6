package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	// conditional update matched no row; another writer already moved it
	ErrStaleRecord = errors.New("stale record")
	// a confirmed ledger row already exists for the order
	ErrAlreadyConfirmed = errors.New("delivery already confirmed")
)

type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(resource string, id int) error {
	return &NotFoundError{Resource: resource, ID: id}
}
