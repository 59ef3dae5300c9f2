package loader

import (
	"context"
	"sync/atomic"
)

// TaskState is the lifecycle of one fetch task.
type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailed
	TaskAborted
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// task owns one cancellable load of a key. Its identity, not its key, decides
// whether a completion still owns the pending listener list.
type task struct {
	key    string
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32
}

func newTask(parent context.Context, key string) *task {
	ctx, cancel := context.WithCancel(parent)
	return &task{key: key, ctx: ctx, cancel: cancel}
}

func (t *task) State() TaskState {
	return TaskState(t.state.Load())
}

// start moves a created task to running. It fails if the task was aborted
// before a worker picked it up.
func (t *task) start() bool {
	return t.state.CompareAndSwap(int32(TaskCreated), int32(TaskRunning))
}

// abort cancels the task's context. A task that never started is finished here.
func (t *task) abort() {
	t.cancel()
	t.state.CompareAndSwap(int32(TaskCreated), int32(TaskAborted))
}

func (t *task) finish(s TaskState) {
	t.state.Store(int32(s))
	t.cancel()
}
