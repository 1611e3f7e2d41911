package session

import (
	"fmt"
	"time"
)

// Session and attendance status values as written to the store.
const (
	StatusActive  = "Active"
	StatusClosed  = "Closed"
	StatusPresent = "Present"
)

// Record is one store-held instance of "class is in session".
type Record struct {
	SessionUUID string
	Status      string
	Timestamp   time.Time
	Students    map[string]Entry
}

// Entry is one student's attendance mark inside a session record.
type Entry struct {
	Status    string
	Timestamp time.Time
}

// Schedule is the externally managed schedule document this core reads.
type Schedule struct {
	Day              string
	StartTime        string
	EndTime          string
	Semester         string
	StudentsEnrolled []string
}

// DateKey renders the date-document key for a point in time.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// recordFields is the store shape of a fresh Active record.
func recordFields(uuid string, now time.Time) map[string]any {
	return map[string]any{
		"SessionUUID": uuid,
		"Status":      StatusActive,
		"timestamp":   now.UTC().Format(time.RFC3339Nano),
	}
}

// entryFields is the store shape of one attendance entry.
func entryFields(now time.Time) map[string]any {
	return map[string]any{
		"status":    StatusPresent,
		"timestamp": now.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeRecord converts one session-keyed value from a date document into a
// typed Record. path is only used for error reporting.
func DecodeRecord(path, key string, v any) (Record, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Record{}, &MalformedRecordError{Path: path, Detail: fmt.Sprintf("session %q is not a map", key)}
	}
	uuid, ok := m["SessionUUID"].(string)
	if !ok || uuid == "" {
		return Record{}, &MalformedRecordError{Path: path, Detail: fmt.Sprintf("session %q missing SessionUUID", key)}
	}
	status, ok := m["Status"].(string)
	if !ok || status == "" {
		return Record{}, &MalformedRecordError{Path: path, Detail: fmt.Sprintf("session %q missing Status", key)}
	}
	rec := Record{SessionUUID: uuid, Status: status, Timestamp: decodeTime(m["timestamp"])}
	if raw, ok := m["StudentAttendanceData"].(map[string]any); ok {
		rec.Students = make(map[string]Entry, len(raw))
		for studentID, ev := range raw {
			em, ok := ev.(map[string]any)
			if !ok {
				return Record{}, &MalformedRecordError{Path: path, Detail: fmt.Sprintf("attendance entry %q is not a map", studentID)}
			}
			st, _ := em["status"].(string)
			rec.Students[studentID] = Entry{Status: st, Timestamp: decodeTime(em["timestamp"])}
		}
	}
	return rec, nil
}

// DecodeSchedule converts a schedule document into a typed Schedule. A missing
// StudentsEnrolled field decodes to a nil roster; the enrollment gate treats
// that as nobody enrolled.
func DecodeSchedule(path string, data map[string]any) (Schedule, error) {
	sched := Schedule{
		Day:       stringField(data, "Day"),
		StartTime: stringField(data, "StartTime"),
		EndTime:   stringField(data, "EndTime"),
		Semester:  stringField(data, "Semester"),
	}
	raw, ok := data["StudentsEnrolled"]
	if !ok || raw == nil {
		return sched, nil
	}
	switch list := raw.(type) {
	case []string:
		sched.StudentsEnrolled = append(sched.StudentsEnrolled, list...)
	case []any:
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return Schedule{}, &MalformedRecordError{Path: path, Detail: "StudentsEnrolled holds a non-string entry"}
			}
			sched.StudentsEnrolled = append(sched.StudentsEnrolled, s)
		}
	default:
		return Schedule{}, &MalformedRecordError{Path: path, Detail: "StudentsEnrolled is not a list"}
	}
	return sched, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func decodeTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
