package hintstore

import (
	"fmt"
	"strings"
)

// ValidationError rejects a save and carries every rule the candidate broke,
// so callers can surface the full list instead of fixing one error per try.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "hintstore: invalid hint: " + strings.Join(e.Errors, "; ")
}

// ConflictError rejects a save because an active hint with equal or higher
// confidence already occupies the same scope for this author.
type ConflictError struct {
	ExistingID          string
	ExistingConfidence  float64
	ExistingDescription string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("hintstore: hint %s already covers this scope with confidence %.2f",
		e.ExistingID, e.ExistingConfidence)
}

// NotFoundError reports an operation against an id that is unknown or no
// longer active.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("hintstore: hint %s not found", e.ID)
}
