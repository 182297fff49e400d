package govee

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// runLoops runs the four refresh loops until ctx is cancelled or one of
// them fails. Loops only fail on a recovered panic.
func (b *Bridge) runLoops(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(b.guard(ctx, "device_list", b.listLoop))
	g.Go(b.guard(ctx, "device", b.deviceLoop))
	g.Go(b.guard(ctx, "boost", b.boostLoop))
	g.Go(b.guard(ctx, "heartbeat", b.heartbeatLoop))

	return g.Wait()
}

// guard converts a panic inside a loop into ErrSchedulerPanic.
func (b *Bridge) guard(ctx context.Context, name string, loop func(context.Context) error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				b.logError("refresh loop panicked", fmt.Errorf("%s: %v\n%s", name, r, debug.Stack()))
				err = fmt.Errorf("%w: %s loop: %v", ErrSchedulerPanic, name, r)
			}
		}()
		return loop(ctx)
	}
}

// every runs fn, then sleeps for interval() and repeats until ctx is
// done. The interval is read after each run so runtime changes apply to
// the next wait. A signal on wake cuts the wait short.
func every(ctx context.Context, interval func() time.Duration, wake <-chan struct{}, fn func(context.Context)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fn(ctx)

		timer := time.NewTimer(interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// =============================================================================
// Loops
// =============================================================================

// listLoop fetches the device list. After the first successful pass it
// waits out the discovery grace period, republishes every discovery
// payload and opens the gate for the device and boost loops. Until then
// failed passes are retried on the shorter device interval. Later passes
// requested through RefreshDeviceList also republish everything.
func (b *Bridge) listLoop(ctx context.Context) error {
	interval := func() time.Duration {
		if b.DiscoveryComplete() {
			return b.intervals.DeviceList()
		}
		return min(b.intervals.DeviceList(), b.intervals.Device())
	}

	return every(ctx, interval, b.listNow, b.listPass)
}

func (b *Bridge) listPass(ctx context.Context) {
	if !b.refreshDeviceList(ctx) {
		return
	}
	if b.DiscoveryComplete() {
		if b.rediscover.Swap(false) {
			b.rediscoverAll()
		}
		return
	}
	if !sleep(ctx, b.discoveryGrace) {
		return
	}
	// The initial rediscovery also serves refresh requests made before it.
	b.rediscover.Store(false)
	b.rediscoverAll()
	b.completeDiscovery()
}

// deviceLoop refreshes every device entity that is not boosted.
func (b *Bridge) deviceLoop(ctx context.Context) error {
	if !b.waitDiscovery(ctx) {
		return nil
	}
	return every(ctx, b.intervals.Device, nil, b.refreshNormal)
}

// boostLoop refreshes the boosted entities.
func (b *Bridge) boostLoop(ctx context.Context) error {
	if !b.waitDiscovery(ctx) {
		return nil
	}
	return every(ctx, b.intervals.Boost, nil, b.refreshBoosted)
}

func (b *Bridge) refreshNormal(ctx context.Context) {
	var ids []string
	for _, id := range b.store.DeviceIDs() {
		if !b.boost.Contains(id) {
			ids = append(ids, id)
		}
	}
	b.refreshEntities(ctx, ids)
	b.publishServiceState()
}

// refreshBoosted drains the boost set before the pass, so entities
// boosted during it wait for the next one.
func (b *Bridge) refreshBoosted(ctx context.Context) {
	ids := b.boost.Drain()
	if len(ids) == 0 {
		return
	}
	b.logDebug("refreshing boosted entities", "count", len(ids))
	b.refreshEntities(ctx, ids)
}

func (b *Bridge) heartbeatLoop(ctx context.Context) error {
	return every(ctx, func() time.Duration { return b.heartbeatInterval }, nil, b.heartbeat)
}

// =============================================================================
// Discovery gate
// =============================================================================

// DiscoveryComplete reports whether the initial discovery has finished.
func (b *Bridge) DiscoveryComplete() bool {
	select {
	case <-b.discoveryDone:
		return true
	default:
		return false
	}
}

func (b *Bridge) completeDiscovery() {
	b.discoveryOnce.Do(func() {
		close(b.discoveryDone)
		b.logInfo("initial discovery complete", "entities", b.store.Len())
	})
}

func (b *Bridge) waitDiscovery(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-b.discoveryDone:
		return true
	}
}
