package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"smartattendance/internal/docstore"
	"smartattendance/internal/metrics"
)

// Recorder writes the single Present entry for a student under a resolved
// session. The write is a targeted field update on the date document, so
// concurrent students under the same session never clobber each other, and
// re-invoking for the same (session, student) overwrites with an equivalent
// value — safe to retry after a transient failure.
type Recorder struct {
	store docstore.Store
	now   func() time.Time
}

// NewRecorder creates a recorder over the store.
func NewRecorder(store docstore.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record marks studentID Present under the resolved session. The caller must
// hold a resolved, Active, enrollment-confirmed context; anything less is
// ErrNoValidSession and nothing is written.
func (r *Recorder) Record(ctx context.Context, res *Resolution, studentID string) error {
	if res == nil || res.SessionUUID == "" || res.CourseID == "" || res.ScheduleID == "" || studentID == "" {
		return ErrNoValidSession
	}
	path := res.Path
	if path == "" {
		path = docstore.AttendancePath(res.CourseID, res.ScheduleID, res.Date)
	}
	fieldPath := res.SessionUUID + ".StudentAttendanceData." + studentID
	if err := r.store.UpdateFields(ctx, path, map[string]any{fieldPath: entryFields(r.now())}); err != nil {
		metrics.Writes.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("attendance write failed: %w", err)
	}
	metrics.Writes.WithLabelValues(metrics.OutcomeOK).Inc()
	log.Printf("attendance saved for student %s under session %s", studentID, res.SessionUUID)
	return nil
}
