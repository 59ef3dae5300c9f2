package loader

import "sync"

// Status is the display state tracked by a Binding.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Registrar is the part of Loader a Binding needs.
type Registrar[V any] interface {
	Fetch(key string, listener Listener[V])
	Cancel(key string, listener Listener[V]) bool
}

// BindingConfig holds the callbacks of a Binding. All fields are optional.
type BindingConfig[V any] struct {
	// IsStillRelevant is checked before a result is applied, e.g. whether the
	// view that asked for it is still on screen.
	IsStillRelevant func() bool
	OnLoading       func(key string)
	OnResult        func(key string, value V)
	OnError         func(key string, err error)
}

// Binding tracks the single outstanding load of one consumer, such as an
// image view. Binding a new key cancels the previous registration first, and
// results for anything but the latest key are dropped.
type Binding[V any] struct {
	registrar Registrar[V]
	cfg       BindingConfig[V]

	mu     sync.Mutex
	token  *bindingToken[V]
	status Status
	err    error
}

// NewBinding creates an idle Binding.
func NewBinding[V any](r Registrar[V], cfg BindingConfig[V]) *Binding[V] {
	return &Binding[V]{registrar: r, cfg: cfg}
}

// Bind requests key, replacing any earlier request.
func (b *Binding[V]) Bind(key string) {
	tok := &bindingToken[V]{binding: b, key: key}

	b.mu.Lock()
	previous := b.token
	b.token = tok
	b.status = StatusLoading
	b.err = nil
	b.mu.Unlock()

	if previous != nil {
		b.registrar.Cancel(previous.key, previous)
	}
	b.registrar.Fetch(key, tok)
}

// Unbind cancels the outstanding request and returns to idle.
func (b *Binding[V]) Unbind() {
	b.mu.Lock()
	previous := b.token
	b.token = nil
	b.status = StatusIdle
	b.err = nil
	b.mu.Unlock()

	if previous != nil {
		b.registrar.Cancel(previous.key, previous)
	}
}

// Key returns the key of the latest Bind, or "" when idle.
func (b *Binding[V]) Key() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == nil {
		return ""
	}
	return b.token.key
}

// Status returns the current state and, for StatusError, the error.
func (b *Binding[V]) Status() (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.err
}

func (b *Binding[V]) relevant() bool {
	return b.cfg.IsStillRelevant == nil || b.cfg.IsStillRelevant()
}

// settle records a terminal state if tok is still current.
func (b *Binding[V]) settle(tok *bindingToken[V], s Status, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != tok {
		return false
	}
	b.status = s
	b.err = err
	return true
}

// bindingToken is the Listener registered for one Bind call.
type bindingToken[V any] struct {
	binding *Binding[V]
	key     string
}

func (t *bindingToken[V]) BeforeFetch(key string) {
	b := t.binding
	b.mu.Lock()
	current := b.token == t
	b.mu.Unlock()
	if current && b.cfg.OnLoading != nil {
		b.cfg.OnLoading(key)
	}
}

func (t *bindingToken[V]) AfterFetch(value V) {
	b := t.binding
	if !b.relevant() || !b.settle(t, StatusSuccess, nil) {
		return
	}
	if b.cfg.OnResult != nil {
		b.cfg.OnResult(t.key, value)
	}
}

func (t *bindingToken[V]) OnFetchError(err error) {
	b := t.binding
	if !b.relevant() || !b.settle(t, StatusError, err) {
		return
	}
	if b.cfg.OnError != nil {
		b.cfg.OnError(t.key, err)
	}
}
