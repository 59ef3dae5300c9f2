package loader_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRegistrar records the order of Fetch and Cancel calls.
type recordingRegistrar struct {
	mu        sync.Mutex
	calls     []string
	listeners map[string]loader.Listener[[]byte]
}

func (r *recordingRegistrar) Fetch(key string, l loader.Listener[[]byte]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "fetch:"+key)
	if r.listeners == nil {
		r.listeners = make(map[string]loader.Listener[[]byte])
	}
	r.listeners[key] = l
}

func (r *recordingRegistrar) Cancel(key string, _ loader.Listener[[]byte]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "cancel:"+key)
	return true
}

func (r *recordingRegistrar) listener(key string) loader.Listener[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeners[key]
}

func TestBinding_CancelsPreviousBeforeFetching(t *testing.T) {
	// Arrange
	reg := &recordingRegistrar{}
	var results []string
	b := loader.NewBinding[[]byte](reg, loader.BindingConfig[[]byte]{
		OnResult: func(key string, v []byte) { results = append(results, key+"="+string(v)) },
	})

	// Act
	b.Bind("a")
	b.Bind("b")
	reg.listener("a").AfterFetch([]byte("stale"))
	reg.listener("b").AfterFetch([]byte("fresh"))

	// Assert
	assert.Equal(t, []string{"fetch:a", "cancel:a", "fetch:b"}, reg.calls)
	assert.Equal(t, []string{"b=fresh"}, results, "results for a replaced key are dropped")
	status, err := b.Status()
	assert.Equal(t, loader.StatusSuccess, status)
	assert.NoError(t, err)
	assert.Equal(t, "b", b.Key())
}

func TestBinding_IsStillRelevant(t *testing.T) {
	reg := &recordingRegistrar{}
	var relevant atomic.Bool
	var delivered atomic.Int32
	b := loader.NewBinding[[]byte](reg, loader.BindingConfig[[]byte]{
		IsStillRelevant: relevant.Load,
		OnResult:        func(string, []byte) { delivered.Add(1) },
	})

	b.Bind("a")
	reg.listener("a").AfterFetch([]byte("v"))

	assert.Equal(t, int32(0), delivered.Load())
	status, _ := b.Status()
	assert.Equal(t, loader.StatusLoading, status)
}

func TestBinding_Error(t *testing.T) {
	reg := &recordingRegistrar{}
	var gotErr error
	b := loader.NewBinding[[]byte](reg, loader.BindingConfig[[]byte]{
		OnError: func(_ string, err error) { gotErr = err },
	})
	boom := errors.New("boom")

	b.Bind("a")
	reg.listener("a").OnFetchError(boom)

	status, err := b.Status()
	assert.Equal(t, loader.StatusError, status)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, gotErr, boom)
}

func TestBinding_Unbind(t *testing.T) {
	reg := &recordingRegistrar{}
	b := loader.NewBinding[[]byte](reg, loader.BindingConfig[[]byte]{})

	b.Bind("a")
	b.Unbind()
	reg.listener("a").AfterFetch([]byte("late"))

	assert.Equal(t, []string{"fetch:a", "cancel:a"}, reg.calls)
	status, _ := b.Status()
	assert.Equal(t, loader.StatusIdle, status)
	assert.Equal(t, "", b.Key())
}

func TestBinding_WithLoader(t *testing.T) {
	// Arrange: rebinding aborts the first load because the binding was its only listener.
	f := newGatedFetcher()
	l := newRawLoader(t, newRawCache(t, 10), f, 4)
	var loading atomic.Int32
	results := make(chan string, 2)
	b := loader.NewBinding[[]byte](l, loader.BindingConfig[[]byte]{
		OnLoading: func(string) { loading.Add(1) },
		OnResult:  func(key string, v []byte) { results <- string(v) },
	})

	// Act
	b.Bind("first")
	require.Equal(t, "first", f.waitStarted(t))
	b.Bind("second")
	require.Equal(t, "second", f.waitStarted(t))
	close(f.release)

	// Assert
	select {
	case v := <-results:
		assert.Equal(t, "payload:second", v)
	case <-time.After(waitTimeout):
		t.Fatal("no result delivered")
	}
	assert.Equal(t, int32(2), loading.Load())
	assert.Eventually(t, func() bool {
		s, _ := b.Status()
		return s == loader.StatusSuccess
	}, waitTimeout, 10*time.Millisecond)

	// A memory hit completes the binding synchronously.
	b.Bind("second")
	status, _ := b.Status()
	assert.Equal(t, loader.StatusSuccess, status)

	_, err := l.Load(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}
