package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"smartattendance/internal/metrics"
	"smartattendance/internal/radio"
)

// ScanState is the scanner's coarse state for one scan lifetime.
type ScanState int

const (
	Scanning ScanState = iota
	Resolved
	Stopped
)

func (s ScanState) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Stopped:
		return "stopped"
	default:
		return "scanning"
	}
}

// ScanSession is the explicit per-scan context object: the resolve-once
// latch, the winning resolution, and the enrollment/recorded flags. It is
// owned by one Scanner.Run call and shared with the resolution goroutines it
// launches; every mutation goes through the mutex.
type ScanSession struct {
	studentID string

	mu         sync.Mutex
	state      ScanState
	lastSeen   string
	pending    map[string]bool
	resolution *Resolution
	enrolled   bool
	gateDone   bool
	recorded   bool
	winnerDone chan struct{}
}

func newScanSession(studentID string) *ScanSession {
	return &ScanSession{
		studentID:  studentID,
		pending:    make(map[string]bool),
		winnerDone: make(chan struct{}),
	}
}

// StudentID returns the student this scan lifetime was started for. The face
// and enrollment gates were run for this id only.
func (s *ScanSession) StudentID() string {
	return s.studentID
}

// claim reserves a candidate for resolution. It refuses when a session is
// already resolved (resolve-once, checked before launching) or when the same
// candidate is already in flight (a noisy radio repeats itself).
func (s *ScanSession) claim(candidate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Scanning || s.pending[candidate] {
		return false
	}
	s.pending[candidate] = true
	s.lastSeen = candidate
	return true
}

// release frees a candidate after a losing completion so a later beacon may
// retry it.
func (s *ScanSession) release(candidate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, candidate)
}

// win sets the resolve-once latch. Exactly one caller per scan session gets
// true; every later completion is discarded.
func (s *ScanSession) win(res *Resolution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Scanning {
		return false
	}
	s.state = Resolved
	s.resolution = res
	return true
}

func (s *ScanSession) finishGate(enrolled bool) {
	s.mu.Lock()
	s.enrolled = enrolled
	s.gateDone = true
	s.mu.Unlock()
	close(s.winnerDone)
}

func (s *ScanSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Scanning {
		s.state = Stopped
	}
}

func (s *ScanSession) won() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Resolved
}

// State returns the scan state.
func (s *ScanSession) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSeen returns the most recently claimed candidate identifier.
func (s *ScanSession) LastSeen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Resolution returns the winning resolution, if any.
func (s *ScanSession) Resolution() (*Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolution, s.resolution != nil
}

// Enrolled reports the enrollment gate outcome and whether the gate has run.
func (s *ScanSession) Enrolled() (enrolled, checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolled, s.gateDone
}

// Recorded reports the local "already recorded" debounce flag.
func (s *ScanSession) Recorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorded
}

// MarkRecorded latches the local debounce flag after a successful write. The
// store-side idempotency is what actually guarantees correctness.
func (s *ScanSession) MarkRecorded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = true
}

// Confirm records this scan's student Present under the resolved session. The
// id must match the student the scan was started for: enrollment and the face
// gate were verified for that student only, so confirming anyone else is
// refused. A repeat confirm after a successful write is a no-op.
func (s *ScanSession) Confirm(ctx context.Context, rec *Recorder, studentID string) error {
	s.mu.Lock()
	res := s.resolution
	eligible := res != nil && s.gateDone && s.enrolled &&
		studentID != "" && studentID == s.studentID
	recorded := s.recorded
	s.mu.Unlock()

	if !eligible {
		return ErrNoValidSession
	}
	if recorded {
		return nil
	}
	if err := rec.Record(ctx, res, studentID); err != nil {
		return err
	}
	s.MarkRecorded()
	return nil
}

// Scanner discovers nearby session broadcasts and drives them through
// resolution and the enrollment gate. One Run is one scan lifetime.
type Scanner struct {
	radio     radio.Scanner
	resolver  *Resolver
	gate      *Gate
	studentID string
}

// NewScanner creates a scanner for one student device.
func NewScanner(r radio.Scanner, resolver *Resolver, gate *Gate, studentID string) *Scanner {
	return &Scanner{radio: r, resolver: resolver, gate: gate, studentID: studentID}
}

// Run scans until the first candidate resolves to an Active session or the
// context ends. Each beacon candidate triggers a fire-and-forget resolution;
// completions race, the first Active match wins the latch, stops the radio,
// and runs the enrollment gate. Losing completions are discarded. Run returns
// the scan session once the winner's gate check has finished, or on
// cancellation.
func (sc *Scanner) Run(ctx context.Context) (*ScanSession, error) {
	sess := newScanSession(sc.studentID)
	beacons, err := sc.radio.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan start: %w", err)
	}
	log.Printf("scanning for nearby sessions as student %s", sc.studentID)

	for {
		select {
		case <-ctx.Done():
			sc.radio.Stop()
			sess.stop()
			return sess, ctx.Err()

		case b, ok := <-beacons:
			if !ok {
				// Radio stopped: by the winner after taking the latch, or
				// externally. Wait out the winner's gate check if there is
				// one.
				if sess.won() {
					select {
					case <-sess.winnerDone:
						return sess, nil
					case <-ctx.Done():
						return sess, ctx.Err()
					}
				}
				sess.stop()
				return sess, nil
			}
			metrics.BeaconsSeen.Inc()
			for _, candidate := range b.ServiceIDs {
				if !sess.claim(candidate) {
					continue
				}
				go sc.resolveCandidate(ctx, sess, candidate)
			}
		}
	}
}

func (sc *Scanner) resolveCandidate(ctx context.Context, sess *ScanSession, candidate string) {
	res, err := sc.resolver.Resolve(ctx, candidate)
	if err != nil {
		sess.release(candidate)
		if errors.Is(err, ErrNoActiveSession) {
			metrics.Resolutions.WithLabelValues(metrics.OutcomeNoMatch).Inc()
			log.Printf("no active attendance session found for %s", candidate)
		} else {
			metrics.Resolutions.WithLabelValues(metrics.OutcomeError).Inc()
			log.Printf("resolution of %s failed: %v", candidate, err)
		}
		return
	}

	if !sess.win(res) {
		metrics.Resolutions.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		return
	}
	metrics.Resolutions.WithLabelValues(metrics.OutcomeMatched).Inc()
	log.Printf("session %s matched to %s/%s", res.SessionUUID, res.CourseID, res.ScheduleID)

	// First Active match wins: stop producing new candidates, then gate.
	sc.radio.Stop()
	enrolled := sc.gate.IsEnrolled(ctx, sc.studentID, res.CourseID, res.ScheduleID)
	if !enrolled {
		log.Printf("student %s is not enrolled in %s/%s", sc.studentID, res.CourseID, res.ScheduleID)
	}
	sess.finishGate(enrolled)
}
