package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetMergePreservesSiblings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := AttendancePath("CS101", "Mon-9am", "2024-05-01")

	require.NoError(t, m.SetMerge(ctx, path, map[string]any{
		"uuid-aaa": map[string]any{"Status": "Active"},
	}))
	require.NoError(t, m.SetMerge(ctx, path, map[string]any{
		"uuid-bbb": map[string]any{"Status": "Active"},
	}))

	doc, err := m.Get(ctx, path)
	require.NoError(t, err)
	require.Len(t, doc, 2)
}

func TestGetNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "Courses/none")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetMerge(ctx, "Courses/CS101", map[string]any{
		"nested": map[string]any{"k": "v"},
	}))

	doc, err := m.Get(ctx, "Courses/CS101")
	require.NoError(t, err)
	doc["nested"].(map[string]any)["k"] = "mutated"

	again, err := m.Get(ctx, "Courses/CS101")
	require.NoError(t, err)
	require.Equal(t, "v", again["nested"].(map[string]any)["k"])
}

func TestUpdateFieldsDottedPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	path := AttendancePath("CS101", "Mon-9am", "2024-05-01")
	require.NoError(t, m.SetMerge(ctx, path, map[string]any{
		"uuid-aaa": map[string]any{"SessionUUID": "uuid-aaa", "Status": "Active"},
	}))

	require.NoError(t, m.UpdateFields(ctx, path, map[string]any{
		"uuid-aaa.Status": "Closed",
	}))
	// Intermediate maps are created on demand.
	require.NoError(t, m.UpdateFields(ctx, path, map[string]any{
		"uuid-aaa.StudentAttendanceData.stu-42": map[string]any{"status": "Present"},
	}))

	doc, err := m.Get(ctx, path)
	require.NoError(t, err)
	rec := doc["uuid-aaa"].(map[string]any)
	require.Equal(t, "Closed", rec["Status"])
	entry := rec["StudentAttendanceData"].(map[string]any)["stu-42"].(map[string]any)
	require.Equal(t, "Present", entry["status"])
}

func TestUpdateFieldsMissingDocument(t *testing.T) {
	m := NewMemory()
	err := m.UpdateFields(context.Background(), "Courses/none", map[string]any{"k": "v"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFieldsRejectsNonMapIntermediate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetMerge(ctx, "Courses/CS101", map[string]any{"Name": "Intro"}))
	err := m.UpdateFields(ctx, "Courses/CS101", map[string]any{"Name.sub": "v"})
	require.Error(t, err)
}

func TestCollectionGroupOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetMerge(ctx, AttendancePath("CS200", "Wed-2pm", "2024-05-01"), map[string]any{"x": map[string]any{}}))
	require.NoError(t, m.SetMerge(ctx, AttendancePath("CS101", "Mon-9am", "2024-05-01"), map[string]any{"y": map[string]any{}}))
	require.NoError(t, m.SetMerge(ctx, SchedulePath("CS101", "Mon-9am"), map[string]any{"Day": "Monday"}))

	snaps, err := m.CollectionGroup(ctx, "Attendance")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, AttendancePath("CS101", "Mon-9am", "2024-05-01"), snaps[0].Path)
	require.Equal(t, AttendancePath("CS200", "Wed-2pm", "2024-05-01"), snaps[1].Path)
}

func TestSetMergeRejectsBadPath(t *testing.T) {
	m := NewMemory()
	require.Error(t, m.SetMerge(context.Background(), "Courses", map[string]any{"k": "v"}))
	require.Error(t, m.SetMerge(context.Background(), "Courses//x", map[string]any{"k": "v"}))
}
