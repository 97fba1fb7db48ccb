package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyInProgress rejects a trigger while the same artifact is processing.
	ErrAlreadyInProgress = errors.New("generation already in progress")
	// ErrAlreadyComplete rejects a trigger on a completed artifact slot.
	ErrAlreadyComplete = errors.New("generation already complete")
	// ErrBatchInProgress rejects a part-book regeneration while a batch is outstanding.
	ErrBatchInProgress = errors.New("part book batch in progress")
	// ErrInvalidMerge rejects a part identity merge with bad arguments.
	ErrInvalidMerge = errors.New("invalid merge")
	// ErrIncompleteOrdering rejects a reorder that is not a permutation of the current identities.
	ErrIncompleteOrdering = errors.New("incomplete ordering")
	// ErrRender marks a terminal error reported by the rendering engine.
	ErrRender = errors.New("render error")
	// ErrTransient marks a retryable failure, such as a single dropped poll.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks an exhausted poll budget.
	ErrTimeout = errors.New("timeout")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRejection reports whether an error is a synchronous state-machine rejection
// that should surface to the caller unchanged rather than be retried.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrAlreadyInProgress),
		errors.Is(err, ErrAlreadyComplete),
		errors.Is(err, ErrBatchInProgress),
		errors.Is(err, ErrInvalidMerge),
		errors.Is(err, ErrIncompleteOrdering):
		return true
	default:
		return false
	}
}

// IsTransient reports whether an error is worth retrying on the next poll.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
