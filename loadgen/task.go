package loadgen

import (
	"context"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
)

// Worker is the state handed to a task's Work function. It owns Client and
// Metrics for the duration of the run.
type Worker struct {
	ID      int
	Client  *emc.Client
	Metrics *Metrics
	Log     logger.Logger
}

// Task is run by a Pool.
//
// Pre and Post run once on a dedicated client. Work runs concurrently, once
// per worker, and must return promptly once ctx is cancelled, checking it
// between units of work.
type Task interface {
	Name() string
	Pre(ctx context.Context, client *emc.Client) error
	Work(ctx context.Context, w *Worker) error
	Post(ctx context.Context, client *emc.Client, report Report) error
}

// WorkFunc is the per-worker body of a task.
type WorkFunc func(ctx context.Context, w *Worker) error

// Funcs builds a Task out of plain functions. Nil Pre and Post are no-ops.
type Funcs struct {
	TaskName string
	PreFunc  func(ctx context.Context, client *emc.Client) error
	WorkFunc WorkFunc
	PostFunc func(ctx context.Context, client *emc.Client, report Report) error
}

var _ Task = Funcs{}

func (f Funcs) Name() string {
	if f.TaskName == "" {
		return "task"
	}
	return f.TaskName
}

func (f Funcs) Pre(ctx context.Context, client *emc.Client) error {
	if f.PreFunc == nil {
		return nil
	}
	return f.PreFunc(ctx, client)
}

func (f Funcs) Work(ctx context.Context, w *Worker) error {
	return f.WorkFunc(ctx, w)
}

func (f Funcs) Post(ctx context.Context, client *emc.Client, report Report) error {
	if f.PostFunc == nil {
		return nil
	}
	return f.PostFunc(ctx, client, report)
}

// Cancelled reports whether the run was interrupted. Workers call it at each
// unit-of-work boundary.
func Cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
