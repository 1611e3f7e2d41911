package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"smartattendance/internal/docstore"
)

// Resolution is the outcome of matching a scanned candidate against the
// store: the Active record plus the course/schedule that own it, derived from
// the record's storage path.
type Resolution struct {
	SessionUUID string
	CourseID    string
	ScheduleID  string
	Date        string
	Path        string
}

// Resolver answers "which active session does this scanned identifier belong
// to" by sweeping the Attendance collection group.
type Resolver struct {
	store docstore.Store
}

// NewResolver creates a resolver over the store.
func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve sweeps all attendance documents for a record whose identifier
// equals candidate and whose status is Active. The sweep visits documents in
// path order and session keys in sorted order, so a duplicate-insertion tie
// breaks the same way on every device. Undecodable entries are skipped; they
// never reach business logic. No match yields ErrNoActiveSession.
func (r *Resolver) Resolve(ctx context.Context, candidate string) (*Resolution, error) {
	if candidate == "" {
		return nil, ErrNoActiveSession
	}
	snaps, err := r.store.CollectionGroup(ctx, "Attendance")
	if err != nil {
		return nil, fmt.Errorf("resolution sweep: %w", err)
	}

	for _, snap := range snaps {
		keys := make([]string, 0, len(snap.Data))
		for k := range snap.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			rec, err := DecodeRecord(snap.Path, key, snap.Data[key])
			if err != nil {
				log.Printf("resolver: %v", err)
				continue
			}
			if rec.SessionUUID != candidate || rec.Status != StatusActive {
				continue
			}
			courseID, scheduleID, err := docstore.OwnerOf(snap.Path)
			if err != nil {
				log.Printf("resolver: matched record with unusable path: %v", err)
				continue
			}
			return &Resolution{
				SessionUUID: rec.SessionUUID,
				CourseID:    courseID,
				ScheduleID:  scheduleID,
				Date:        dateOf(snap.Path),
				Path:        snap.Path,
			}, nil
		}
	}
	return nil, ErrNoActiveSession
}

func dateOf(attendancePath string) string {
	parts := strings.Split(attendancePath, "/")
	return parts[len(parts)-1]
}
