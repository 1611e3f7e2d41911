package radio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel carrying beacons between devices on
// the same bus.
const DefaultChannel = "attendance:beacons"

// RedisAdvertiser republishes a service identifier on a pub/sub channel at a
// fixed interval, approximating a continuous proximity broadcast.
type RedisAdvertiser struct {
	client   *redis.Client
	channel  string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRedisAdvertiser builds an advertiser on the given channel.
func NewRedisAdvertiser(client *redis.Client, channel string, interval time.Duration) *RedisAdvertiser {
	if channel == "" {
		channel = DefaultChannel
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &RedisAdvertiser{client: client, channel: channel, interval: interval}
}

// Start publishes the identifier once synchronously, then keeps republishing
// until Stop. The synchronous publish is the "confirmed advertisement start":
// if it fails the radio never went live.
func (a *RedisAdvertiser) Start(ctx context.Context, serviceID string) error {
	if err := a.client.Publish(ctx, a.channel, serviceID).Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = a.client.Publish(loopCtx, a.channel, serviceID).Err()
			}
		}
	}()
	return nil
}

// Stop halts republishing. Outstanding publishes are not awaited.
func (a *RedisAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// RedisScanner receives beacons from the pub/sub channel.
type RedisScanner struct {
	client  *redis.Client
	channel string

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewRedisScanner builds a scanner on the given channel.
func NewRedisScanner(client *redis.Client, channel string) *RedisScanner {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisScanner{client: client, channel: channel}
}

// Scan subscribes and forwards messages as beacons. A message may carry
// several comma-separated identifiers; each becomes a candidate.
func (s *RedisScanner) Scan(ctx context.Context) (<-chan Beacon, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	s.mu.Lock()
	if s.sub != nil {
		_ = s.sub.Close()
	}
	s.sub = sub
	s.mu.Unlock()

	out := make(chan Beacon, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				ids := strings.Split(msg.Payload, ",")
				out <- Beacon{ServiceIDs: ids}
			}
		}
	}()
	return out, nil
}

// Stop closes the subscription, ending the beacon channel.
func (s *RedisScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
}
