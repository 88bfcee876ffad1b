package progress

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"teledrive/pkg/models"
)

// Reporter publishes the latest ProgressSnapshot for concurrent readers.
// Writers replace the snapshot wholesale; readers never block and never
// observe a partially updated value.
type Reporter struct {
	current  atomic.Pointer[models.ProgressSnapshot]
	throttle *rate.Sometimes
}

// NewReporter starts in the idle phase. Intermediate byte updates are
// published at most once per period.
func NewReporter(period time.Duration) *Reporter {
	r := &Reporter{throttle: &rate.Sometimes{Interval: period}}
	r.Set(models.ProgressSnapshot{Phase: models.PhaseIdle})
	return r
}

// Get returns a copy of the current snapshot
func (r *Reporter) Get() models.ProgressSnapshot {
	return *r.current.Load()
}

// Set publishes snap unconditionally
func (r *Reporter) Set(snap models.ProgressSnapshot) {
	snap.UpdatedAt = time.Now()
	if snap.BytesTotal > 0 && snap.BytesMoved > snap.BytesTotal {
		snap.BytesMoved = snap.BytesTotal
	}
	r.current.Store(&snap)
}

// Update applies fn to a copy of the current snapshot and publishes it
func (r *Reporter) Update(fn func(*models.ProgressSnapshot)) {
	snap := r.Get()
	fn(&snap)
	r.Set(snap)
}

// UpdateThrottled is Update for high frequency byte counters; calls inside
// the throttle period are dropped. Final values must go through Update.
func (r *Reporter) UpdateThrottled(fn func(*models.ProgressSnapshot)) {
	r.throttle.Do(func() { r.Update(fn) })
}

// Reset returns to the idle phase, keeping nothing from the previous run
func (r *Reporter) Reset() {
	r.Set(models.ProgressSnapshot{Phase: models.PhaseIdle})
}
