package session

import (
	"context"
	"log"

	"smartattendance/internal/docstore"
)

// Gate decides whether a student may attend a schedule's sessions. It is a
// pure roster lookup with no side effects and it fails closed: any read
// error, missing document, or missing roster means not enrolled.
type Gate struct {
	store docstore.Store
}

// NewGate creates a gate over the store.
func NewGate(store docstore.Store) *Gate {
	return &Gate{store: store}
}

// Roster returns the ordered list of student identifiers permitted on the
// schedule.
func (g *Gate) Roster(ctx context.Context, courseID, scheduleID string) ([]string, error) {
	path := docstore.SchedulePath(courseID, scheduleID)
	doc, err := g.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	sched, err := DecodeSchedule(path, doc)
	if err != nil {
		return nil, err
	}
	return sched.StudentsEnrolled, nil
}

// IsEnrolled reports roster membership. Uncertainty is never permission.
func (g *Gate) IsEnrolled(ctx context.Context, studentID, courseID, scheduleID string) bool {
	if studentID == "" {
		return false
	}
	roster, err := g.Roster(ctx, courseID, scheduleID)
	if err != nil {
		log.Printf("enrollment check failed for %s/%s, treating as not enrolled: %v", courseID, scheduleID, err)
		return false
	}
	for _, id := range roster {
		if id == studentID {
			return true
		}
	}
	return false
}
