package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/pkg/types"
)

// Registry is the single process-wide view of every worker this process
// has touched. All worker acquisition goes through it so shutdown can stop
// everything that was started.
type Registry struct {
	mgr *Manager

	mu      sync.Mutex
	workers map[string]types.WorkerInfo // keyed by dbPath
}

// NewRegistry creates a registry backed by mgr.
func NewRegistry(mgr *Manager) *Registry {
	return &Registry{mgr: mgr, workers: make(map[string]types.WorkerInfo)}
}

// Acquire returns a live worker for dbPath, starting one if needed, and
// records it for shutdown.
func (r *Registry) Acquire(ctx context.Context, dbPath string) (types.WorkerInfo, error) {
	info, err := r.mgr.GetOrStartWorker(ctx, dbPath)
	if err != nil {
		return types.WorkerInfo{}, err
	}
	r.mu.Lock()
	r.workers[dbPath] = info
	r.mu.Unlock()
	return info, nil
}

// Tracked returns the workers currently recorded.
func (r *Registry) Tracked() []types.WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.WorkerInfo, 0, len(r.workers))
	for _, info := range r.workers {
		out = append(out, info)
	}
	return out
}

// Shutdown stops every tracked worker in parallel. The first error is
// returned but all workers are attempted.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	paths := make([]string, 0, len(r.workers))
	for p := range r.workers {
		paths = append(paths, p)
	}
	r.workers = make(map[string]types.WorkerInfo)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			return r.mgr.StopWorker(ctx, p)
		})
	}
	return g.Wait()
}
