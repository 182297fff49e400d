package govee

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/infrastructure/influxdb"
)

// StatsWriter records service statistics in a time-series store.
// This interface is satisfied by *influxdb.Client.
type StatsWriter interface {
	WriteServiceStats(service string, stats influxdb.ServiceStats)
}

// heartbeat touches the ready file, republishes the service state and
// records service statistics.
func (b *Bridge) heartbeat(_ context.Context) {
	if b.readyFile != "" {
		if err := touch(b.readyFile); err != nil {
			b.logWarn("failed to touch ready file", "path", b.readyFile, "error", err)
		}
	}

	b.publishServiceState()

	if b.stats != nil {
		usage := b.api.Usage()
		b.stats.WriteServiceStats(b.serviceName, influxdb.ServiceStats{
			APICalls:       usage.APICalls,
			RateLimited:    usage.RateLimited,
			Entities:       len(b.store.DeviceIDs()),
			BoostedDevices: b.boost.Len(),
		})
	}
}

// touch updates the modification time of path, creating it if needed.
func touch(path string) error {
	now := time.Now()
	err := os.Chtimes(path, now, now)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
