package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no document exists at the requested path.
var ErrNotFound = errors.New("docstore: document not found")

// Snapshot is a document read together with the path it was found at.
type Snapshot struct {
	Path string
	Data map[string]any
}

// Store is a document service addressed by hierarchical slash paths.
// Writes are merges or targeted field updates, never whole-document
// overwrites; reads are by path or by collection-group sweep.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (map[string]any, error)
	// SetMerge merges the given top-level fields into the document at path,
	// creating it if absent. Sibling fields are preserved.
	SetMerge(ctx context.Context, path string, fields map[string]any) error
	// UpdateFields applies dotted-field-path updates (e.g. "abc.Status") to
	// an existing document. Missing intermediate maps are created; a missing
	// document yields ErrNotFound.
	UpdateFields(ctx context.Context, path string, updates map[string]any) error
	// CollectionGroup returns every document whose immediate collection has
	// the given name, in ascending path order.
	CollectionGroup(ctx context.Context, collection string) ([]Snapshot, error)
}

// CoursePath returns the path of a course document.
func CoursePath(courseID string) string {
	return "Courses/" + courseID
}

// SchedulePath returns the path of a schedule document under its course.
func SchedulePath(courseID, scheduleID string) string {
	return "Courses/" + courseID + "/Schedule/" + scheduleID
}

// AttendancePath returns the path of the date-keyed attendance document for a
// schedule. The document is a map keyed by session identifier.
func AttendancePath(courseID, scheduleID, date string) string {
	return "Courses/" + courseID + "/Schedule/" + scheduleID + "/Attendance/" + date
}

// OwnerOf walks an attendance document path back up to the owning schedule and
// course identifiers. This is the resolver's only source of session ownership
// and depends on the Courses/{c}/Schedule/{s}/Attendance/{d} layout.
func OwnerOf(attendancePath string) (courseID, scheduleID string, err error) {
	parts := strings.Split(attendancePath, "/")
	if len(parts) != 6 || parts[0] != "Courses" || parts[2] != "Schedule" || parts[4] != "Attendance" {
		return "", "", fmt.Errorf("docstore: %q is not an attendance path", attendancePath)
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("docstore: %q has empty owner segments", attendancePath)
	}
	return parts[1], parts[3], nil
}

// collectionOf returns the name of the collection a document path sits in.
func collectionOf(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// validDocPath reports whether path has the collection/document shape.
func validDocPath(path string) bool {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
