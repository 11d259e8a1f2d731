// Package shared contains the error taxonomy used across the store core.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for every error class the store core distinguishes.
var (
	// ErrTransientLock indicates lock contention that survived the bounded retry budget.
	ErrTransientLock = errors.New("transient lock")

	// ErrAlreadyExists indicates the target structure is already present.
	// Callers treat it as a successful, idempotent outcome.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStructuralMismatch indicates the live structure does not match the declared version.
	ErrStructuralMismatch = errors.New("structural mismatch")

	// ErrUnrecoverable indicates a failure that must abort startup.
	ErrUnrecoverable = errors.New("unrecoverable")

	// ErrNotFound indicates that a requested row or object was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindTransientLock represents retry-exhausted lock contention
	KindTransientLock
	// KindAlreadyExists represents tolerated "structure already present" errors
	KindAlreadyExists
	// KindStructuralMismatch represents drift between declared and live structure
	KindStructuralMismatch
	// KindUnrecoverable represents failures that abort startup
	KindUnrecoverable
	// KindNotFound represents missing rows or objects
	KindNotFound
	// KindValidation represents invalid input
	KindValidation
	// KindTimeout represents timeout errors
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindTransientLock:
		return "TransientLock"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindStructuralMismatch:
		return "StructuralMismatch"
	case KindUnrecoverable:
		return "Unrecoverable"
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindTransientLock:      ErrTransientLock,
	KindAlreadyExists:      ErrAlreadyExists,
	KindStructuralMismatch: ErrStructuralMismatch,
	KindUnrecoverable:      ErrUnrecoverable,
	KindNotFound:           ErrNotFound,
	KindValidation:         ErrValidation,
	KindTimeout:            ErrTimeout,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindUnrecoverable, ErrUnrecoverable}, // must win over anything it wraps
	{KindTransientLock, ErrTransientLock},
	{KindStructuralMismatch, ErrStructuralMismatch},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain using a deterministic priority order:
//
//  1. KindCanceled (context.Canceled)
//  2. KindTimeout (context.DeadlineExceeded, ErrTimeout)
//  3. KindUnrecoverable
//  4. KindTransientLock, KindStructuralMismatch, KindAlreadyExists
//  5. KindNotFound, KindValidation
//
// An unrecoverable failure that wraps a lock error is reported as unrecoverable, so
// the version controller aborts instead of treating it as retryable.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindAlreadyExists:
//	    // idempotent success
//	case shared.KindStructuralMismatch:
//	    // self-repair
//	default:
//	    return err
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps an error with the sentinel error for the given kind,
// preserving the original error through error wrapping.
// Both KindOf(MarkKind(err, kind)) == kind and errors.Is(MarkKind(err, kind), err) hold.
// If err is nil, returns the sentinel error for the kind (or nil for unsupported kinds).
// Marking an error with a kind it already carries returns it unchanged.
//
// Example usage for adapting driver errors:
//
//	if isBusy(err) {
//	    return shared.MarkKind(err, shared.KindTransientLock)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil {
		return err
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Unrecoverable marks err as unrecoverable with additional context.
// If err is nil, Unrecoverable returns nil.
func Unrecoverable(err error, context string) error {
	if err == nil {
		return nil
	}
	return MarkKind(Wrap(err, context), KindUnrecoverable)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
// If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
}

// IsTransientLock reports whether the error is retry-exhausted lock contention.
func IsTransientLock(err error) bool {
	return errors.Is(err, ErrTransientLock)
}

// IsAlreadyExists reports whether the error signals an already present structure.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsStructuralMismatch reports whether the error signals structural drift.
func IsStructuralMismatch(err error) bool {
	return errors.Is(err, ErrStructuralMismatch)
}

// IsUnrecoverable reports whether the error must abort startup.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrUnrecoverable)
}

// IsNotFound reports whether the error indicates a missing row or object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the error indicates input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
