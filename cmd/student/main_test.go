package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartattendance/internal/docstore"
	"smartattendance/internal/radio"
	"smartattendance/internal/session"
)

func seedActiveSession(t *testing.T, store docstore.Store, courseID, scheduleID, date, uuid string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SetMerge(ctx, docstore.SchedulePath(courseID, scheduleID), map[string]any{
		"StudentsEnrolled": []any{"stu-42"},
	}))
	require.NoError(t, store.SetMerge(ctx, docstore.AttendancePath(courseID, scheduleID, date), map[string]any{
		uuid: map[string]any{
			"SessionUUID": uuid,
			"Status":      session.StatusActive,
			"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
		},
	}))
}

func TestScanRunnerClearsPreviousSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mem := docstore.NewMemory()
	seedActiveSession(t, mem, "CS101", "Mon-9am", "2024-05-01", "abc-123")

	air := radio.NewAir()
	adv := air.Advertiser()
	require.NoError(t, adv.Start(ctx, "abc-123"))
	defer adv.Stop()

	runner := &scanRunner{}
	first := session.NewScanner(air.Scanner(), session.NewResolver(mem), session.NewGate(mem), "stu-42")
	require.True(t, runner.start(first))

	require.Eventually(t, func() bool {
		sess, running := runner.current()
		return !running && sess != nil && sess.State() == session.Resolved
	}, 5*time.Second, 10*time.Millisecond)

	// A second scan on quiet air must not surface the first scan's outcome
	// while it runs.
	quiet := radio.NewAir()
	second := session.NewScanner(quiet.Scanner(), session.NewResolver(mem), session.NewGate(mem), "stu-42")
	require.True(t, runner.start(second))

	sess, running := runner.current()
	require.True(t, running)
	require.Nil(t, sess)

	runner.stop()
	require.Eventually(t, func() bool {
		_, running := runner.current()
		return !running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScanRunnerRefusesConcurrentScans(t *testing.T) {
	air := radio.NewAir()
	mem := docstore.NewMemory()
	runner := &scanRunner{}

	sc := session.NewScanner(air.Scanner(), session.NewResolver(mem), session.NewGate(mem), "stu-42")
	require.True(t, runner.start(sc))
	defer runner.stop()

	other := session.NewScanner(air.Scanner(), session.NewResolver(mem), session.NewGate(mem), "stu-42")
	require.False(t, runner.start(other))
}
