package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrStorageUnavailable wraps every storage failure that a caller should retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAlreadyRecorded is returned when a message already has a parse outcome.
	ErrAlreadyRecorded = errors.New("message outcome already recorded")
)

// StorageError keeps the failing operation next to the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable.Error(), e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyRecorded)
	}
	return &StorageError{Op: op, Err: err}
}
