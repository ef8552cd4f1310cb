package replication

import (
	"sync"
	"sync/atomic"
	"time"

	"cdn-edge/internal/structures"
)

// activityLogSize bounds how many recent copy outcomes are retained for
// the debug activity endpoint.
const activityLogSize = 256

// Event records the outcome of one replication copy, for the debug
// activity endpoint.
type Event struct {
	Object    string
	Edge      string
	Success   bool
	Bytes     int64
	Duration  time.Duration
	Timestamp time.Time
}

// Stats summarizes replication throughput since process start.
type Stats struct {
	Copied          int64
	Failed          int64
	ElapsedSeconds  float64
	TransferSpeedMB float64
}

// activityTracker records recent replication outcomes and aggregate
// throughput. Adapted from a migration progress tracker that assumed a
// known total object count; replication has no fixed total, so this
// variant only tracks cumulative counters and a rolling speed average.
type activityTracker struct {
	log            *structures.RingBuffer
	copied         atomic.Int64
	failed         atomic.Int64
	startTime      time.Time
	mu             sync.Mutex
	recentSpeeds   []float64
	lastUpdateTime time.Time
}

func newActivityTracker() *activityTracker {
	now := time.Now()
	return &activityTracker{
		log:            structures.NewRingBuffer(activityLogSize),
		startTime:      now,
		lastUpdateTime: now,
		recentSpeeds:   make([]float64, 0, 10),
	}
}

func (a *activityTracker) record(ev Event) {
	_ = a.log.Push(ev)

	if ev.Success {
		a.copied.Add(1)
	} else {
		a.failed.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(a.lastUpdateTime).Seconds()
	if elapsed > 0 && ev.Bytes > 0 {
		speed := float64(ev.Bytes) / elapsed
		a.recentSpeeds = append(a.recentSpeeds, speed)
		if len(a.recentSpeeds) > 10 {
			a.recentSpeeds = a.recentSpeeds[1:]
		}
	}
	a.lastUpdateTime = now
}

func (a *activityTracker) stats() Stats {
	a.mu.Lock()
	var avgSpeed float64
	if len(a.recentSpeeds) > 0 {
		var sum float64
		for _, s := range a.recentSpeeds {
			sum += s
		}
		avgSpeed = sum / float64(len(a.recentSpeeds))
	}
	a.mu.Unlock()

	return Stats{
		Copied:          a.copied.Load(),
		Failed:          a.failed.Load(),
		ElapsedSeconds:  time.Since(a.startTime).Seconds(),
		TransferSpeedMB: avgSpeed / (1024 * 1024),
	}
}

// recent returns the most recently recorded events, oldest first.
func (a *activityTracker) recent() []Event {
	raw := a.log.Snapshot()
	out := make([]Event, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(Event))
	}
	return out
}
