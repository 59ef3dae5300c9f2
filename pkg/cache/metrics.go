package cache

// Tier labels passed to Metrics.RecordHit.
const (
	TierMemory = "memory"
	TierStore  = "store"
)

// Metrics provides observability for cache operations.
//
// This is optional: a nil Metrics skips collection entirely. pkg/metrics
// provides a Prometheus implementation.
type Metrics interface {
	// RecordHit records a successful Get served from the given tier.
	RecordHit(cacheName, tier string)
	// RecordMiss records a Get that found nothing in either tier.
	RecordMiss(cacheName string)
	// RecordEviction records an entry dropped from the memory tier by capacity.
	RecordEviction(cacheName string)
	// RecordStoreWriteFailure records a write-through failure that was swallowed.
	RecordStoreWriteFailure(cacheName string)
}

func recordHit(m Metrics, name, tier string) {
	if m != nil {
		m.RecordHit(name, tier)
	}
}

func recordMiss(m Metrics, name string) {
	if m != nil {
		m.RecordMiss(name)
	}
}

func recordEviction(m Metrics, name string) {
	if m != nil {
		m.RecordEviction(name)
	}
}

func recordStoreWriteFailure(m Metrics, name string) {
	if m != nil {
		m.RecordStoreWriteFailure(name)
	}
}
