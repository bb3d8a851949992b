package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for classifying failures across the battery. Components
// wrap their errors with one of these so callers can pick a handling policy
// without inspecting message text.
var (
	// ErrWrite marks a recoverable persistence failure (export or snapshot
	// write). Callers retry locally before surfacing it to the operator; the
	// data stays in memory for manual retry.
	ErrWrite = errors.New("write error")
	// ErrConflict marks an attempt to start a session while an unresolved one
	// exists. It is a user-decision point, resolved via resume or discard.
	ErrConflict = errors.New("session conflict")
	// ErrValidation marks malformed input: bad participant records, corrupt
	// snapshots, invalid stimulus plans.
	ErrValidation = errors.New("validation error")
	// ErrRuntime marks everything else; it escapes to the crash monitor.
	ErrRuntime = errors.New("runtime error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRuntime
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRecoverable reports whether an error may be retried and surfaced as
// non-fatal rather than escalated to the crash monitor.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrWrite) || errors.Is(err, ErrConflict)
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
		return "failure"
	}
	return strings.Join(parts, ": ")
}
