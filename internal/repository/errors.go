package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict indicates a conditional update lost a race against another writer.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrInsufficientBalance indicates an update would leave a balance below zero.
	ErrInsufficientBalance = errors.New("repository: insufficient balance")
	// ErrDuplicate indicates a unique key is already taken.
	ErrDuplicate = errors.New("repository: duplicate")
)
