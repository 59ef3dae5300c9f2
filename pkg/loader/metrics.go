package loader

import "time"

// Fetch outcomes reported to Metrics.ObserveFetch.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
)

// Metrics provides observability for the loader. A nil Metrics disables collection.
type Metrics interface {
	// RecordMemoryHit records a Fetch answered synchronously from memory.
	RecordMemoryHit()
	// RecordCoalesced records a listener joining an already pending load.
	RecordCoalesced()
	// ObserveFetch records a finished task with its outcome and run time.
	ObserveFetch(outcome string, duration time.Duration)
	// SetQueueDepth records running and waiting task counts.
	SetQueueDepth(active, queued int)
}

func recordMemoryHit(m Metrics) {
	if m != nil {
		m.RecordMemoryHit()
	}
}

func recordCoalesced(m Metrics) {
	if m != nil {
		m.RecordCoalesced()
	}
}

func observeFetch(m Metrics, outcome string, d time.Duration) {
	if m != nil {
		m.ObserveFetch(outcome, d)
	}
}

func setQueueDepth(m Metrics, active, queued int) {
	if m != nil {
		m.SetQueueDepth(active, queued)
	}
}
