package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartattendance/internal/docstore"
)

func testResolution() *Resolution {
	return &Resolution{
		SessionUUID: "abc-123",
		CourseID:    "CS101",
		ScheduleID:  "Mon-9am",
		Date:        "2024-05-01",
		Path:        docstore.AttendancePath("CS101", "Mon-9am", "2024-05-01"),
	}
}

// presentEntries reads back the StudentAttendanceData map with timestamps
// stripped, for idempotency comparisons.
func presentEntries(t *testing.T, store docstore.Store, res *Resolution) map[string]string {
	t.Helper()
	doc, err := store.Get(context.Background(), res.Path)
	require.NoError(t, err)
	rec, err := DecodeRecord(res.Path, res.SessionUUID, doc[res.SessionUUID])
	require.NoError(t, err)
	out := make(map[string]string, len(rec.Students))
	for id, entry := range rec.Students {
		out[id] = entry.Status
	}
	return out
}

func TestRecordAttendance(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	res := testResolution()
	seedRecord(t, mem, res.CourseID, res.ScheduleID, res.Date, res.SessionUUID, StatusActive)

	rec := NewRecorder(mem)
	require.NoError(t, rec.Record(ctx, res, "stu-42"))

	require.Equal(t, map[string]string{"stu-42": StatusPresent}, presentEntries(t, mem, res))
}

func TestRecordAttendanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	res := testResolution()
	seedRecord(t, mem, res.CourseID, res.ScheduleID, res.Date, res.SessionUUID, StatusActive)

	rec := NewRecorder(mem)
	rec.now = func() time.Time { return time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC) }
	require.NoError(t, rec.Record(ctx, res, "stu-42"))
	once := presentEntries(t, mem, res)

	rec.now = func() time.Time { return time.Date(2024, 5, 1, 9, 6, 0, 0, time.UTC) }
	require.NoError(t, rec.Record(ctx, res, "stu-42"))
	twice := presentEntries(t, mem, res)

	require.Equal(t, once, twice)
	require.Len(t, twice, 1)
}

func TestRecordConcurrentStudentsDoNotClobber(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	res := testResolution()
	seedRecord(t, mem, res.CourseID, res.ScheduleID, res.Date, res.SessionUUID, StatusActive)

	rec := NewRecorder(mem)
	require.NoError(t, rec.Record(ctx, res, "stu-42"))
	require.NoError(t, rec.Record(ctx, res, "stu-7"))

	require.Equal(t, map[string]string{
		"stu-42": StatusPresent,
		"stu-7":  StatusPresent,
	}, presentEntries(t, mem, res))
}

func TestRecordRequiresValidSession(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	rec := NewRecorder(mem)

	require.ErrorIs(t, rec.Record(ctx, nil, "stu-42"), ErrNoValidSession)
	require.ErrorIs(t, rec.Record(ctx, &Resolution{}, "stu-42"), ErrNoValidSession)
	require.ErrorIs(t, rec.Record(ctx, testResolution(), ""), ErrNoValidSession)

	// Nothing was written anywhere.
	snaps, err := mem.CollectionGroup(ctx, "Attendance")
	require.NoError(t, err)
	require.Empty(t, snaps)
}

func TestRecordWriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: docstore.NewMemory(), failUpdateFields: true}
	rec := NewRecorder(store)
	err := rec.Record(ctx, testResolution(), "stu-42")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoValidSession)
}
