package enrich

import (
	"sync"
	"time"
)

// opRecord is one remembered operation outcome.
type opRecord struct {
	tool      string
	errorType string
	at        time.Time
}

// historyRing is a bounded most-recent-N ring of prior operations. It is the
// only cross-request state the enricher keeps, guarded by its own mutex.
type historyRing struct {
	mu      sync.Mutex
	records []opRecord
	next    int
	full    bool
}

func newHistoryRing(size int) *historyRing {
	return &historyRing{records: make([]opRecord, size)}
}

func (h *historyRing) add(tool, errorType string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = opRecord{tool: tool, errorType: errorType, at: at}
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

// countRecent returns how many remembered operations share the given tool
// and error type within the window ending at now.
func (h *historyRing) countRecent(tool, errorType string, window time.Duration, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	limit := h.next
	if h.full {
		limit = len(h.records)
	}

	count := 0
	for i := 0; i < limit; i++ {
		r := h.records[i]
		if r.tool == tool && r.errorType == errorType && now.Sub(r.at) <= window {
			count++
		}
	}
	return count
}
