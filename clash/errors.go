package clash

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupNotFound is returned by group operations naming a group the
	// document does not contain.
	ErrGroupNotFound = errors.New("proxy group not found")

	// ErrGroupExists rejects renames and additions that would collide with
	// an existing group or a sentinel target.
	ErrGroupExists = errors.New("proxy group name already in use")

	// ErrEmptyGroupName rejects blank group names.
	ErrEmptyGroupName = errors.New("proxy group name is empty")

	// ErrIndexOutOfRange is returned by positional member operations.
	ErrIndexOutOfRange = errors.New("member index out of range")
)

// RuleError describes a rule entry that could not be parsed. Text holds a
// truncated copy of the offending input and Line its position in the source
// document when known.
type RuleError struct {
	Line   int
	Text   string
	Reason string
}

func (e *RuleError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("rule at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("rule at line %d (%q): %s", e.Line, snippet(e.Text), e.Reason)
}
