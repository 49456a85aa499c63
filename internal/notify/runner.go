package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"secure-relay/internal/observability"
)

// LocalRunner executes tasks in-process on a bounded pool. Task errors are
// logged by the executor and never returned, so the group is never cancelled.
type LocalRunner struct {
	exec *Executor
	base context.Context
	g    errgroup.Group
}

// NewLocalRunner allows at most workers tasks in flight. Extra tasks are
// dropped and counted.
func NewLocalRunner(exec *Executor, workers int) *LocalRunner {
	if workers <= 0 {
		workers = 1
	}
	r := &LocalRunner{exec: exec, base: context.Background()}
	r.g.SetLimit(workers)
	return r
}

func (r *LocalRunner) Submit(task Task) bool {
	ok := r.g.TryGo(func() error {
		_ = r.exec.Execute(r.base, task)
		return nil
	})
	if !ok {
		observability.EscalationsDropped.Inc()
		slog.Warn("notification pool saturated, dropping task",
			slog.String("channel", task.Channel),
			slog.String("recipient", task.Recipient))
	}
	return ok
}

// Wait blocks until every accepted task has finished.
func (r *LocalRunner) Wait() {
	_ = r.g.Wait()
}
