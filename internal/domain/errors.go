package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInvalidState          = errors.New("invalid state transition")
	ErrInvalidToken          = errors.New("invalid share token")
	ErrExpiredLink           = errors.New("share link expired")
	ErrScopeMismatch         = errors.New("share link scope mismatch")
	ErrForbidden             = errors.New("forbidden")
	ErrNotAuthorizedApprover = errors.New("approver is not authorized for this request")
	ErrRequestClosed         = errors.New("approval request is closed")
	ErrStorage               = errors.New("storage failure")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrValidation            = errors.New("validation failed")
)

// StorageError reports a blob store failure together with the outcome of the
// compensating deletes that followed it.
type StorageError struct {
	Op  string
	Err error
	// Removed lists blobs deleted during compensation.
	Removed []string
	// Leaked lists blobs whose compensating delete failed.
	Leaked []string
}

func (e *StorageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "storage %s: %v", e.Op, e.Err)
	if len(e.Removed) > 0 || len(e.Leaked) > 0 {
		fmt.Fprintf(&b, " (cleanup: %d removed, %d leaked)", len(e.Removed), len(e.Leaked))
	}
	return b.String()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// CleanedUp reports whether every blob uploaded before the failure was removed.
func (e *StorageError) CleanedUp() bool {
	return len(e.Leaked) == 0
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
