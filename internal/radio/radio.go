package radio

import "context"

// Beacon is one received proximity advertisement. It carries service
// identifier strings and nothing else; a beacon proves a nearby device is
// asserting those identifiers, not who the device is.
type Beacon struct {
	ServiceIDs []string
}

// Advertiser broadcasts a single service identifier until stopped. The
// advertisement is non-connectable and carries no device name.
type Advertiser interface {
	// Start begins broadcasting serviceID. An error means the radio never
	// started; callers must not act as if it did.
	Start(ctx context.Context, serviceID string) error
	// Stop halts the broadcast. Safe to call when not advertising.
	Stop()
}

// Scanner listens for nearby beacons.
type Scanner interface {
	// Scan returns a channel of received beacons. The channel is closed when
	// ctx is cancelled or Stop is called.
	Scan(ctx context.Context) (<-chan Beacon, error)
	// Stop ends the scan and closes the beacon channel.
	Stop()
}
