package reminder

import "errors"

var (
	// ErrInvalidSchedule rejects a due time that is not in the future at
	// creation or reschedule time. Nothing is persisted.
	ErrInvalidSchedule = errors.New("reminder: due time must be in the future")

	// ErrNotFound reports an operation addressing a nonexistent item id.
	ErrNotFound = errors.New("reminder: item not found")

	// ErrPermissionDenied reports a caller trying a privileged mutation on
	// somebody else's reminder.
	ErrPermissionDenied = errors.New("reminder: permission denied")
)
