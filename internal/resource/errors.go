package resource

import "fmt"

// ApplyError is a failed action. The run stops at the first one.
type ApplyError struct {
	ID     ID
	Action Action
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s action %s: %v", e.ID, e.Action, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// NotificationError is a notification whose target cannot receive it.
// It is raised while validating declarations, never during a run.
type NotificationError struct {
	Source ID
	Target ID
	Action Action
	Reason string
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notifies %s %s: %s", e.Source, e.Target, e.Action, e.Reason)
}

// DuplicateError is a second declaration of the same identity.
type DuplicateError struct {
	ID ID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("resource %s declared twice", e.ID)
}
