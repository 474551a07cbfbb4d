// Package observability provides request statistics tracking for performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// RequestStats tracks per-opcode request counts and latency.
type RequestStats struct {
	mu       sync.RWMutex
	requests map[string]*OpcodeStats
}

// OpcodeStats holds statistics for one request opcode.
type OpcodeStats struct {
	Opcode   string
	Count    int64
	Errors   int64
	Total    time.Duration
	Max      time.Duration
	LastSeen time.Time
}

// Mean returns the mean latency, zero when nothing was recorded.
func (s *OpcodeStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// NewRequestStats creates a new request statistics tracker.
func NewRequestStats() *RequestStats {
	return &RequestStats{requests: make(map[string]*OpcodeStats)}
}

// Record records one handled request. This method is O(1) and thread-safe.
func (r *RequestStats) Record(opcode string, elapsed time.Duration, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, exists := r.requests[opcode]
	if !exists {
		stats = &OpcodeStats{Opcode: opcode}
		r.requests[opcode] = stats
	}

	stats.Count++
	if isError {
		stats.Errors++
	}
	stats.Total += elapsed
	if elapsed > stats.Max {
		stats.Max = elapsed
	}
	stats.LastSeen = time.Now()
}

// Total returns the number of requests recorded across all opcodes.
func (r *RequestStats) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, s := range r.requests {
		total += s.Count
	}
	return total
}

// Opcode returns a copy of the stats for one opcode, or nil.
func (r *RequestStats) Opcode(opcode string) *OpcodeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.requests[opcode]
	if !ok {
		return nil
	}
	out := *s
	return &out
}

// Snapshot returns a copy of all opcode stats sorted by count descending,
// ties broken by opcode name.
func (r *RequestStats) Snapshot() []OpcodeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]OpcodeStats, 0, len(r.requests))
	for _, s := range r.requests {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Opcode < out[j].Opcode
	})
	return out
}
