package radio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receiveBeacon(t *testing.T, ch <-chan Beacon) Beacon {
	t.Helper()
	select {
	case b, ok := <-ch:
		require.True(t, ok, "beacon channel closed early")
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for beacon")
		return Beacon{}
	}
}

func TestAirDeliversAdvertisementToScanner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	air := NewAir()

	sc := air.Scanner()
	ch, err := sc.Scan(ctx)
	require.NoError(t, err)

	require.NoError(t, air.Advertiser().Start(ctx, "abc-123"))
	b := receiveBeacon(t, ch)
	require.Equal(t, []string{"abc-123"}, b.ServiceIDs)
}

func TestAirReplaysActiveAdvertisementsOnSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	air := NewAir()

	require.NoError(t, air.Advertiser().Start(ctx, "abc-123"))

	ch, err := air.Scanner().Scan(ctx)
	require.NoError(t, err)
	b := receiveBeacon(t, ch)
	require.Equal(t, []string{"abc-123"}, b.ServiceIDs)
}

func TestAirScannerStopClosesChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	air := NewAir()

	sc := air.Scanner()
	ch, err := sc.Scan(ctx)
	require.NoError(t, err)
	sc.Stop()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after stop")
	}
}

func TestAirAdvertiserStopRemovesFromAir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	air := NewAir()

	adv := air.Advertiser()
	require.NoError(t, adv.Start(ctx, "abc-123"))
	adv.Stop()

	// A fresh scanner sees nothing on the air.
	ch, err := air.Scanner().Scan(ctx)
	require.NoError(t, err)
	select {
	case b, ok := <-ch:
		require.False(t, ok, "unexpected beacon %v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAirRestartReplacesAdvertisement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	air := NewAir()

	adv := air.Advertiser()
	require.NoError(t, adv.Start(ctx, "old-111"))
	require.NoError(t, adv.Start(ctx, "new-222"))

	ch, err := air.Scanner().Scan(ctx)
	require.NoError(t, err)
	b := receiveBeacon(t, ch)
	require.Equal(t, []string{"new-222"}, b.ServiceIDs)
}
