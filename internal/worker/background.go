package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Background runs named long-lived tasks inside the current process and
// stops them together. Unlike the process Registry it never spawns
// anything; tasks are plain functions that return when their context is
// cancelled.
type Background struct {
	log zerolog.Logger

	mu      sync.Mutex
	names   []string
	runCtx  context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// NewBackground creates an empty runner. Call Init before Go.
func NewBackground(log zerolog.Logger) *Background {
	return &Background{log: log}
}

// Init prepares the runner. Tasks started afterwards share a context
// derived from ctx and are cancelled together on Shutdown.
func (b *Background) Init(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.group, _ = errgroup.WithContext(ctx)
	b.cancel = cancel
	b.started = true
	b.runCtx = ctx
}

// Go starts fn as a named task. A task error is logged immediately and
// reported again by Shutdown.
func (b *Background) Go(name string, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return fmt.Errorf("background runner not initialized")
	}
	b.names = append(b.names, name)
	ctx := b.runCtx
	b.group.Go(func() error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			b.log.Error().Err(err).Str("task", name).Msg("background task failed")
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
	return nil
}

// Names returns the tasks started so far.
func (b *Background) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Shutdown cancels every task and waits for them to return, bounded by
// ctx.
func (b *Background) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	cancel := b.cancel
	group := b.group
	b.started = false
	b.mu.Unlock()

	cancel()
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
