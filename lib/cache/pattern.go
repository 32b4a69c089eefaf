package cache

import (
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/util"
)

const (
	// patternWindowSize bounds the per-key access history. The oldest
	// sample is dropped as new ones arrive.
	patternWindowSize = 100

	// featureCount is the fixed dimension of the per-key feature vector.
	featureCount = 4
)

// accessPattern tracks the bounded access history of one key: the access
// timestamps and the intervals between consecutive accesses (in seconds).
type accessPattern struct {
	mu        sync.Mutex
	times     []time.Time
	intervals []float64
}

func newAccessPattern() *accessPattern {
	return &accessPattern{
		times:     make([]time.Time, 0, patternWindowSize),
		intervals: make([]float64, 0, patternWindowSize),
	}
}

// record appends one access at the given time.
func (p *accessPattern) record(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.times) > 0 {
		interval := now.Sub(p.times[len(p.times)-1]).Seconds()
		p.intervals = append(p.intervals, interval)
		if len(p.intervals) > patternWindowSize {
			p.intervals = p.intervals[1:]
		}
	}
	p.times = append(p.times, now)
	if len(p.times) > patternWindowSize {
		p.times = p.times[1:]
	}
}

// size returns the number of retained access timestamps.
func (p *accessPattern) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.times)
}

// features derives the fixed 4-dimensional feature vector: interval
// count, mean interval, interval standard deviation, most recent
// interval. Keys with fewer than two recorded accesses have no intervals
// yet and yield the zero vector.
func (p *accessPattern) features() [featureCount]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var f [featureCount]float64
	if len(p.times) < 2 {
		return f
	}

	stats := util.NewStats(p.intervals)
	f[0] = float64(len(p.intervals))
	f[1] = stats.Mean
	f[2] = stats.StdDeviation
	f[3] = p.intervals[len(p.intervals)-1]
	return f
}
