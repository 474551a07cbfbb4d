package exec

import (
	"sync"
	"time"
)

// Timestamper issues strictly increasing microsecond timestamps for writes
// that do not carry an explicit USING TIMESTAMP.
type Timestamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTimestamper creates a generator backed by the wall clock.
func NewTimestamper() *Timestamper {
	return &Timestamper{now: time.Now}
}

// Next returns the next timestamp. When the clock stalls or steps back,
// timestamps keep advancing by one microsecond.
func (t *Timestamper) Next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.now().UnixMicro()
	if ts <= t.last {
		ts = t.last + 1
	}
	t.last = ts
	return ts
}
