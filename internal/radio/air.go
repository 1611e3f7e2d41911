package radio

import (
	"context"
	"sync"
)

// Air is an in-process radio medium for dev and tests. Advertisers register
// active service identifiers; scanners receive a beacon whenever an
// advertisement starts and once for everything already on the air when they
// subscribe.
type Air struct {
	mu     sync.Mutex
	active []string
	subs   map[int]chan Beacon
	nextID int
}

// NewAir creates an empty medium.
func NewAir() *Air {
	return &Air{subs: make(map[int]chan Beacon)}
}

// Broadcast delivers a beacon to every subscribed scanner. Slow subscribers
// drop beacons rather than block the medium, like a real radio.
func (a *Air) Broadcast(b Beacon) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func (a *Air) startAd(serviceID string) {
	a.mu.Lock()
	a.active = append(a.active, serviceID)
	a.mu.Unlock()
	a.Broadcast(Beacon{ServiceIDs: []string{serviceID}})
}

func (a *Air) stopAd(serviceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, id := range a.active {
		if id == serviceID {
			a.active = append(a.active[:i], a.active[i+1:]...)
			return
		}
	}
}

func (a *Air) subscribe() (int, chan Beacon, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	ch := make(chan Beacon, 16)
	a.subs[id] = ch
	onAir := make([]string, len(a.active))
	copy(onAir, a.active)
	return id, ch, onAir
}

func (a *Air) unsubscribe(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.subs[id]; ok {
		delete(a.subs, id)
		close(ch)
	}
}

// Advertiser returns an advertiser bound to this medium.
func (a *Air) Advertiser() Advertiser { return &airAdvertiser{air: a} }

// Scanner returns a scanner bound to this medium.
func (a *Air) Scanner() Scanner { return &airScanner{air: a, sub: -1} }

type airAdvertiser struct {
	air     *Air
	mu      sync.Mutex
	current string
}

func (ad *airAdvertiser) Start(ctx context.Context, serviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.current != "" {
		ad.air.stopAd(ad.current)
	}
	ad.current = serviceID
	ad.air.startAd(serviceID)
	return nil
}

func (ad *airAdvertiser) Stop() {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.current != "" {
		ad.air.stopAd(ad.current)
		ad.current = ""
	}
}

type airScanner struct {
	air *Air
	mu  sync.Mutex
	sub int
}

func (s *airScanner) Scan(ctx context.Context) (<-chan Beacon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ch, onAir := s.air.subscribe()
	s.mu.Lock()
	s.sub = id
	s.mu.Unlock()

	// Replay what is already on the air so a scanner starting after the
	// broadcaster still discovers the session.
	for _, serviceID := range onAir {
		select {
		case ch <- Beacon{ServiceIDs: []string{serviceID}}:
		default:
		}
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return ch, nil
}

func (s *airScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub >= 0 {
		s.air.unsubscribe(s.sub)
		s.sub = -1
	}
}
