package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoScheduleSelected is returned when the broadcaster is started
	// without a resolved course/schedule selection.
	ErrNoScheduleSelected = errors.New("no schedule selected")

	// ErrAlreadyAdvertising is returned when Start is called while a
	// broadcast is live.
	ErrAlreadyAdvertising = errors.New("session already advertising")

	// ErrNotAdvertising is returned when Stop is called from Idle.
	ErrNotAdvertising = errors.New("no session advertising")

	// ErrAdvertiseStart wraps a radio-layer failure to begin advertising.
	// When it is returned, no session record was written.
	ErrAdvertiseStart = errors.New("advertisement failed to start")

	// ErrNoActiveSession means a resolution sweep found no Active record for
	// the candidate. It is a retryable-by-waiting condition, not a fault.
	ErrNoActiveSession = errors.New("no active attendance session found")

	// ErrNoValidSession is returned when attendance is recorded without a
	// resolved, enrollment-confirmed session context.
	ErrNoValidSession = errors.New("no valid active session to log")
)

// ActiveSessionError reports a still-Active record found for today's date
// during the supersede check. The operator must close it (or abort) before a
// new session may start.
type ActiveSessionError struct {
	UUID string
}

func (e *ActiveSessionError) Error() string {
	return fmt.Sprintf("an attendance session is already active: %s", e.UUID)
}

// MalformedRecordError reports a store payload that failed to decode into a
// typed record at the store boundary.
type MalformedRecordError struct {
	Path   string
	Detail string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at %s: %s", e.Path, e.Detail)
}
