package loader

// Listener receives the outcome of a Fetch. Implementations must be comparable
// (normally pointer types): Cancel finds a listener by identity.
type Listener[V any] interface {
	// BeforeFetch is called on the caller's goroutine when the value is not in
	// memory and a network load is about to be queued or joined.
	BeforeFetch(key string)
	// AfterFetch delivers the loaded value.
	AfterFetch(value V)
	// OnFetchError delivers a load failure. Cancellation is never reported.
	OnFetchError(err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
// Use it by pointer so that each registration has its own identity.
type ListenerFuncs[V any] struct {
	Before func(key string)
	After  func(value V)
	Error  func(err error)
}

func (f *ListenerFuncs[V]) BeforeFetch(key string) {
	if f.Before != nil {
		f.Before(key)
	}
}

func (f *ListenerFuncs[V]) AfterFetch(value V) {
	if f.After != nil {
		f.After(value)
	}
}

func (f *ListenerFuncs[V]) OnFetchError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Result is a single outcome, as delivered by a ChanListener.
type Result[V any] struct {
	Value V
	Err   error
}

// ChanListener forwards the outcome to a buffered channel, for callers that
// want to block on a result.
type ChanListener[V any] struct {
	results chan Result[V]
}

func NewChanListener[V any]() *ChanListener[V] {
	return &ChanListener[V]{results: make(chan Result[V], 1)}
}

// Results yields exactly one Result unless the listener is cancelled first.
func (c *ChanListener[V]) Results() <-chan Result[V] {
	return c.results
}

func (c *ChanListener[V]) BeforeFetch(string) {}

func (c *ChanListener[V]) AfterFetch(value V) {
	c.results <- Result[V]{Value: value}
}

func (c *ChanListener[V]) OnFetchError(err error) {
	c.results <- Result[V]{Err: err}
}
