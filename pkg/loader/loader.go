// Package loader coalesces concurrent requests for the same resource into one
// network load and bounds how many loads run at once. Loaded values are served
// from and written to a two-level cache.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
	"github.com/rs/zerolog"
)

// DefaultMaxConcurrent is the number of loads allowed to run at once.
const DefaultMaxConcurrent = 4

// ErrClosed is delivered to listeners registered after Close.
var ErrClosed = errors.New("loader is closed")

// Fetcher retrieves the raw bytes for a key. *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DecodeFunc turns fetched bytes into a cached value.
type DecodeFunc[V any] func(data []byte) (V, error)

// CacheSource yields the cache to use for each call. *cache.Holder satisfies
// it, so a regenerated cache is picked up without rebuilding the loader.
type CacheSource[V any] interface {
	Cache() cache.Cache[V]
}

// CacheSourceFunc adapts a function to CacheSource.
type CacheSourceFunc[V any] func() cache.Cache[V]

func (f CacheSourceFunc[V]) Cache() cache.Cache[V] { return f() }

// Config holds the loader's tunables.
type Config struct {
	MaxConcurrent int
}

type options struct {
	executor func(func())
	metrics  Metrics
}

// Option configures optional loader behaviour.
type Option func(*options)

// WithExecutor makes the loader hand asynchronous listener callbacks to exec,
// for instance to run them on an event loop owned by the caller. By default
// callbacks run on the worker goroutine that finished the load.
func WithExecutor(exec func(func())) Option {
	return func(o *options) {
		o.executor = exec
	}
}

// WithMetrics attaches a Metrics implementation.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Stats is a snapshot of the loader's bookkeeping.
type Stats struct {
	Active  int
	Queued  int
	Pending int
}

// Loader deduplicates loads per key and runs at most MaxConcurrent at a time.
// All bookkeeping is guarded by one mutex that is never held during I/O or
// while calling listeners.
type Loader[V any] struct {
	caches        CacheSource[V]
	fetcher       Fetcher
	decode        DecodeFunc[V]
	maxConcurrent int
	executor      func(func())
	metrics       Metrics
	logger        zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string][]Listener[V]
	tasks   map[string]*task
	waiting []string
	active  int
	closed  bool
}

// New creates a Loader.
func New[V any](caches CacheSource[V], f Fetcher, decode DecodeFunc[V], cfg Config, logger zerolog.Logger, opts ...Option) (*Loader[V], error) {
	if caches == nil {
		return nil, errors.New("cache source cannot be nil")
	}
	if f == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if decode == nil {
		return nil, errors.New("decode function cannot be nil")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	o := options{executor: func(fn func()) { fn() }}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Loader[V]{
		caches:        caches,
		fetcher:       f,
		decode:        decode,
		maxConcurrent: cfg.MaxConcurrent,
		executor:      o.executor,
		metrics:       o.metrics,
		logger:        logger.With().Str("component", "Loader").Logger(),
		baseCtx:       ctx,
		stop:          stop,
		pending:       make(map[string][]Listener[V]),
		tasks:         make(map[string]*task),
	}, nil
}

// NewGraphicLoader creates a Loader that decodes fetched bytes into graphics.
func NewGraphicLoader(caches CacheSource[graphic.Graphic], f Fetcher, cfg Config, logger zerolog.Logger, opts ...Option) (*Loader[graphic.Graphic], error) {
	return New[graphic.Graphic](caches, f, graphic.Decode, cfg, logger, opts...)
}

// NewRawLoader creates a Loader that caches fetched bytes unchanged.
func NewRawLoader(caches CacheSource[[]byte], f Fetcher, cfg Config, logger zerolog.Logger, opts ...Option) (*Loader[[]byte], error) {
	return New[[]byte](caches, f, func(data []byte) ([]byte, error) { return data, nil }, cfg, logger, opts...)
}

// Fetch delivers the value for key to listener. A value already in memory is
// delivered synchronously through AfterFetch. Otherwise BeforeFetch is called
// and the listener joins the pending load for key, starting one if needed;
// the result arrives later on a worker goroutine (or the configured executor).
func (l *Loader[V]) Fetch(key string, listener Listener[V]) {
	c := l.caches.Cache()
	if v, ok := c.GetFromMemory(key); ok {
		recordMemoryHit(l.metrics)
		listener.AfterFetch(v)
		return
	}

	listener.BeforeFetch(key)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		listener.OnFetchError(ErrClosed)
		return
	}
	if listeners, ok := l.pending[key]; ok {
		l.pending[key] = append(listeners, listener)
		l.mu.Unlock()
		recordCoalesced(l.metrics)
		l.logger.Debug().Str("key", key).Msg("Joined pending load.")
		return
	}
	l.pending[key] = []Listener[V]{listener}
	l.tasks[key] = newTask(l.baseCtx, key)
	l.waiting = append(l.waiting, key)
	l.mu.Unlock()

	l.admit()
}

// Cancel removes the first registration of listener for key and reports
// whether one was found. Removing the last listener aborts the load; the
// concurrency slot is released when the aborted task finishes.
func (l *Loader[V]) Cancel(key string, listener Listener[V]) bool {
	l.mu.Lock()
	listeners, ok := l.pending[key]
	if !ok {
		l.mu.Unlock()
		return false
	}
	idx := -1
	for i, registered := range listeners {
		if registered == listener {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return false
	}

	remaining := make([]Listener[V], 0, len(listeners)-1)
	remaining = append(remaining, listeners[:idx]...)
	remaining = append(remaining, listeners[idx+1:]...)
	if len(remaining) > 0 {
		l.pending[key] = remaining
		l.mu.Unlock()
		return true
	}

	t := l.tasks[key]
	delete(l.pending, key)
	delete(l.tasks, key)
	l.removeWaitingLocked(key)
	l.mu.Unlock()

	if t != nil {
		t.abort()
		l.logger.Debug().Str("key", key).Str("state", t.State().String()).Msg("Aborted load after last listener left.")
	}
	return true
}

// Load returns the value for key on the caller's goroutine, consulting the
// cache first and writing through on success. It does not coalesce with
// pending loads and does not use a concurrency slot.
func (l *Loader[V]) Load(ctx context.Context, key string) (V, error) {
	c := l.caches.Cache()
	if v, ok := c.GetFromMemory(key); ok {
		recordMemoryHit(l.metrics)
		return v, nil
	}
	return l.load(ctx, c, key)
}

// Stats returns a snapshot of the current bookkeeping.
func (l *Loader[V]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Active: l.active, Queued: len(l.waiting), Pending: len(l.pending)}
}

// Close aborts every load, drops all listeners without notifying them, and
// waits for running workers to return.
func (l *Loader[V]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	tasks := make([]*task, 0, len(l.tasks))
	for _, t := range l.tasks {
		tasks = append(tasks, t)
	}
	l.pending = make(map[string][]Listener[V])
	l.tasks = make(map[string]*task)
	l.waiting = nil
	l.mu.Unlock()

	l.stop()
	for _, t := range tasks {
		t.abort()
	}
	l.wg.Wait()
	l.logger.Info().Int("aborted", len(tasks)).Msg("Loader closed.")
}

// admit starts waiting tasks in FIFO order while slots are free.
func (l *Loader[V]) admit() {
	for {
		l.mu.Lock()
		if l.closed || l.active >= l.maxConcurrent || len(l.waiting) == 0 {
			setQueueDepth(l.metrics, l.active, len(l.waiting))
			l.mu.Unlock()
			return
		}
		key := l.waiting[0]
		l.waiting = l.waiting[1:]
		t, ok := l.tasks[key]
		if !ok {
			l.mu.Unlock()
			continue
		}
		l.active++
		l.wg.Add(1)
		l.mu.Unlock()

		go l.run(t)
	}
}

func (l *Loader[V]) run(t *task) {
	defer l.wg.Done()

	var zero V
	if !t.start() {
		l.complete(t, zero, context.Canceled, 0)
		return
	}

	start := time.Now()
	v, err := l.load(t.ctx, l.caches.Cache(), t.key)
	l.complete(t, v, err, time.Since(start))
}

// load is the task body: persistent cache, then network, then decode and store.
func (l *Loader[V]) load(ctx context.Context, c cache.Cache[V], key string) (V, error) {
	var zero V
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	data, err := l.fetcher.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	v, err := l.decode(data)
	if err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	// The write-through finishes even if every listener has gone away.
	c.Put(context.WithoutCancel(ctx), key, v)
	return v, nil
}

// complete runs exactly once per started task. It takes the listener list
// only if this task still owns key, so an aborted task never answers
// listeners that registered after it was cancelled.
func (l *Loader[V]) complete(t *task, v V, err error, d time.Duration) {
	l.mu.Lock()
	var listeners []Listener[V]
	if current, ok := l.tasks[t.key]; ok && current == t {
		listeners = l.pending[t.key]
		delete(l.pending, t.key)
		delete(l.tasks, t.key)
	}
	l.active--
	l.mu.Unlock()

	log := l.logger.With().Str("key", t.key).Int("listeners", len(listeners)).Dur("duration", d).Logger()
	switch {
	case errors.Is(err, context.Canceled):
		t.finish(TaskAborted)
		observeFetch(l.metrics, OutcomeAborted, d)
		log.Debug().Msg("Load aborted.")
		listeners = nil
	case err != nil:
		t.finish(TaskFailed)
		observeFetch(l.metrics, OutcomeError, d)
		log.Warn().Err(err).Msg("Load failed.")
	default:
		t.finish(TaskCompleted)
		observeFetch(l.metrics, OutcomeSuccess, d)
		log.Debug().Msg("Load completed.")
	}

	if len(listeners) > 0 {
		l.executor(func() {
			for _, listener := range listeners {
				if err != nil {
					listener.OnFetchError(err)
				} else {
					listener.AfterFetch(v)
				}
			}
		})
	}

	l.admit()
}

// removeWaitingLocked must be called with the mutex held.
func (l *Loader[V]) removeWaitingLocked(key string) {
	for i, k := range l.waiting {
		if k == key {
			l.waiting = append(l.waiting[:i:i], l.waiting[i+1:]...)
			return
		}
	}
}
