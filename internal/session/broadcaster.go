package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartattendance/internal/docstore"
	"smartattendance/internal/metrics"
	"smartattendance/internal/radio"
)

// BroadcastState is the broadcaster's lifecycle state.
type BroadcastState int

const (
	Idle BroadcastState = iota
	Advertising
)

func (s BroadcastState) String() string {
	if s == Advertising {
		return "advertising"
	}
	return "idle"
}

// Broadcaster asserts "this class session is happening now": it advertises a
// fresh session identifier over the radio and mirrors it into the store as an
// Active record. The radio and the store must never disagree about whether a
// session is live, so the record is written only after the advertisement is
// confirmed, and rolled back if the write fails.
type Broadcaster struct {
	store docstore.Store
	adv   radio.Advertiser
	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	state      BroadcastState
	courseID   string
	scheduleID string
	activeUUID string
	activeDate string
}

// NewBroadcaster creates an idle broadcaster.
func NewBroadcaster(store docstore.Store, adv radio.Advertiser) *Broadcaster {
	return &Broadcaster{
		store: store,
		adv:   adv,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Select binds the broadcaster to a resolved course/schedule pair.
func (b *Broadcaster) Select(courseID, scheduleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.courseID = courseID
	b.scheduleID = scheduleID
}

// State returns the current lifecycle state.
func (b *Broadcaster) State() BroadcastState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ActiveSession returns the live session identifier, if any.
func (b *Broadcaster) ActiveSession() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeUUID, b.state == Advertising
}

// Start generates a new session identifier, begins advertising it, and merges
// an Active record into today's date document. If a prior record for this
// schedule is still Active today, Start refuses with *ActiveSessionError so
// the operator can close it first (see CloseSession) rather than silently
// creating a second Active session.
func (b *Broadcaster) Start(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Advertising {
		return "", ErrAlreadyAdvertising
	}
	if b.courseID == "" || b.scheduleID == "" {
		return "", ErrNoScheduleSelected
	}

	date := DateKey(b.now())
	if stale, err := b.activeRecordLocked(ctx, date); err != nil {
		return "", fmt.Errorf("supersede check: %w", err)
	} else if stale != "" {
		return "", &ActiveSessionError{UUID: stale}
	}

	id := b.newID()
	if err := b.adv.Start(ctx, id); err != nil {
		// Radio never went live; no record is written.
		return "", fmt.Errorf("%w: %v", ErrAdvertiseStart, err)
	}

	path := docstore.AttendancePath(b.courseID, b.scheduleID, date)
	if err := b.store.SetMerge(ctx, path, map[string]any{id: recordFields(id, b.now())}); err != nil {
		// The advertisement started but the record did not land. Stop the
		// radio so nothing broadcasts an identifier the store never saw.
		b.adv.Stop()
		return "", fmt.Errorf("write session record: %w", err)
	}

	b.state = Advertising
	b.activeUUID = id
	b.activeDate = date
	metrics.SessionsStarted.Inc()
	log.Printf("session %s advertising for %s/%s on %s", id, b.courseID, b.scheduleID, date)
	return id, nil
}

// Stop halts the advertisement and flips the record to Closed. The radio is
// stopped first; if the status flip then fails, the broadcaster still returns
// to Idle and the error is reported for the operator to act on. A stale
// Active record is preferable to a silent broadcast.
func (b *Broadcaster) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Advertising {
		return ErrNotAdvertising
	}
	b.adv.Stop()

	id, date := b.activeUUID, b.activeDate
	b.state = Idle
	b.activeUUID = ""
	b.activeDate = ""

	if err := b.closeRecordLocked(ctx, id, date); err != nil {
		return fmt.Errorf("session %s stopped but record not closed: %w", id, err)
	}
	log.Printf("session %s closed", id)
	return nil
}

// CloseSession flips an arbitrary session record for today to Closed. Used by
// the supersede flow before starting a new session.
func (b *Broadcaster) CloseSession(ctx context.Context, sessionUUID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.courseID == "" || b.scheduleID == "" {
		return ErrNoScheduleSelected
	}
	if sessionUUID == "" {
		return errors.New("session uuid required")
	}
	return b.closeRecordLocked(ctx, sessionUUID, DateKey(b.now()))
}

// CheckActive reports the identifier of today's Active record, if one exists.
func (b *Broadcaster) CheckActive(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.courseID == "" || b.scheduleID == "" {
		return "", ErrNoScheduleSelected
	}
	return b.activeRecordLocked(ctx, DateKey(b.now()))
}

func (b *Broadcaster) activeRecordLocked(ctx context.Context, date string) (string, error) {
	path := docstore.AttendancePath(b.courseID, b.scheduleID, date)
	doc, err := b.store.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	for key, v := range doc {
		rec, err := DecodeRecord(path, key, v)
		if err != nil {
			log.Printf("skipping undecodable session entry: %v", err)
			continue
		}
		if rec.Status == StatusActive {
			return rec.SessionUUID, nil
		}
	}
	return "", nil
}

func (b *Broadcaster) closeRecordLocked(ctx context.Context, sessionUUID, date string) error {
	path := docstore.AttendancePath(b.courseID, b.scheduleID, date)
	err := b.store.UpdateFields(ctx, path, map[string]any{sessionUUID + ".Status": StatusClosed})
	if err != nil {
		return err
	}
	metrics.SessionsClosed.Inc()
	return nil
}
