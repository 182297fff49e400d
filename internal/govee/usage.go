package govee

import (
	"net/http"
	"sync"
	"time"
)

// DateLayout is the format of Usage.LastCallDate.
const DateLayout = "2006-01-02"

// Usage is a snapshot of the daily API call counter.
type Usage struct {
	APICalls     int
	LastCallDate string
	LastCall     time.Time
	RateLimited  bool
}

// UsageCounter counts vendor API calls per calendar day in a fixed zone.
// The vendor enforces a daily quota, so the count resets when the date
// changes and survives restarts through a UsageRepository.
type UsageCounter struct {
	mu  sync.Mutex
	loc *time.Location
	now func() time.Time

	calls       int
	date        string
	last        time.Time
	rateLimited bool
}

// NewUsageCounter creates a counter whose days roll over in loc.
func NewUsageCounter(loc *time.Location) *UsageCounter {
	if loc == nil {
		loc = time.UTC
	}
	return &UsageCounter{loc: loc, now: time.Now}
}

// Record counts one answered call with the given HTTP status.
func (u *UsageCounter) Record(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now().In(u.loc)
	if today := now.Format(DateLayout); u.date != today {
		u.calls = 0
		u.date = today
	}
	u.calls++
	u.last = now
	u.rateLimited = status == http.StatusTooManyRequests
}

// Snapshot returns the current counter values.
func (u *UsageCounter) Snapshot() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()

	return Usage{
		APICalls:     u.calls,
		LastCallDate: u.date,
		LastCall:     u.last,
		RateLimited:  u.rateLimited,
	}
}

// Restore seeds the counter from a persisted snapshot. A count from an
// earlier day is kept until the next call rolls it over.
func (u *UsageCounter) Restore(usage Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.calls = usage.APICalls
	u.date = usage.LastCallDate
	u.last = usage.LastCall
}
