package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const speedWindow = 10

// Meter derives transfer rate and ETA for a single item from cumulative byte counts
type Meter struct {
	total     int64
	startTime time.Time
	lastTime  time.Time
	lastMoved int64
	speeds    []float64
	now       func() time.Time
	mu        sync.Mutex
}

// NewMeter creates a meter for an item of total bytes
func NewMeter(total int64) *Meter {
	return newMeterAt(total, time.Now)
}

func newMeterAt(total int64, now func() time.Time) *Meter {
	start := now()
	return &Meter{
		total:     total,
		startTime: start,
		lastTime:  start,
		speeds:    make([]float64, 0, speedWindow),
		now:       now,
	}
}

// Observe records the cumulative moved bytes and returns the
// averaged rate (bytes/s) and the remaining-time estimate.
func (m *Meter) Observe(moved int64) (float64, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	elapsed := now.Sub(m.lastTime).Seconds()
	delta := moved - m.lastMoved
	if elapsed > 0 && delta > 0 {
		m.speeds = append(m.speeds, float64(delta)/elapsed)
		if len(m.speeds) > speedWindow {
			m.speeds = m.speeds[1:]
		}
		m.lastTime = now
		m.lastMoved = moved
	}

	var avg float64
	if len(m.speeds) > 0 {
		var sum float64
		for _, s := range m.speeds {
			sum += s
		}
		avg = sum / float64(len(m.speeds))
	}

	var eta time.Duration
	if remaining := m.total - moved; avg > 0 && remaining > 0 {
		eta = time.Duration(float64(remaining) / avg * float64(time.Second))
	}
	return avg, eta
}

// SetTotal replaces the item total, for items whose size is only known
// once they have been read
func (m *Meter) SetTotal(total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// Elapsed since the meter was created
func (m *Meter) Elapsed() time.Duration {
	return m.now().Sub(m.startTime)
}

// FormatETA renders an ETA the way the status API shows it
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return "calculating..."
	}
	return eta.Round(time.Second).String()
}

// FormatRate renders bytes/s as a human readable string
func FormatRate(rate float64) string {
	if rate <= 0 {
		return "0 B/s"
	}
	return fmt.Sprintf("%s/s", humanize.Bytes(uint64(rate)))
}
