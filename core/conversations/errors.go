package conversations

import (
	"errors"
	"fmt"
)

var (
	ErrConflictingRole = errors.New("conversations: delta role conflicts with item role")
	ErrItemCompleted   = errors.New("conversations: delta for completed item")
	ErrMissingItemID   = errors.New("conversations: delta without item id")
)

// ReconcileError reports a delta that was dropped.
type ReconcileError struct {
	Kind   error
	ItemID string
	Detail string
}

func (e *ReconcileError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (item %q)", e.Kind, e.ItemID)
	}
	return fmt.Sprintf("%v (item %q): %s", e.Kind, e.ItemID, e.Detail)
}

func (e *ReconcileError) Unwrap() error { return e.Kind }

func (e *ReconcileError) Is(target error) bool { return e.Kind == target }
