package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the session protocol, registered on the default registry and
// served by promhttp in each daemon.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_started_total",
		Help: "Broadcast sessions started.",
	})

	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_closed_total",
		Help: "Broadcast sessions closed, including superseded ones.",
	})

	BeaconsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_beacons_seen_total",
		Help: "Proximity beacons received by the scanner.",
	})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_resolutions_total",
		Help: "Session resolution attempts by outcome.",
	}, []string{"outcome"})

	Writes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_writes_total",
		Help: "Attendance record writes by outcome.",
	}, []string{"outcome"})
)

// Resolution outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeNoMatch   = "no_match"
	OutcomeDiscarded = "discarded"
	OutcomeError     = "error"
	OutcomeOK        = "ok"
)
