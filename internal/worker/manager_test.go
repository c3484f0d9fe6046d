package worker_test

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/worker"
	"github.com/codescope/codescope/pkg/types"
)

// TestMain doubles as the worker executable for the lifecycle tests.
func TestMain(m *testing.M) {
	if os.Getenv(types.WorkerEnvMarker) == "1" && len(os.Args) >= 5 && os.Args[1] == "--db" {
		runWorkerHelper(os.Args[2], os.Args[4])
		return
	}
	os.Exit(m.Run())
}

func runWorkerHelper(dbPath, socketPath string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	d := database.NewDirectDriver(dbPath)
	if err := d.Connect(ctx); err != nil {
		os.Exit(1)
	}
	defer func() { _ = d.Disconnect() }()

	cfg := worker.RunConfig{DBPath: dbPath, SocketPath: socketPath}
	if err := worker.Run(ctx, cfg, d, zerolog.Nop()); err != nil {
		os.Exit(1)
	}
}

func newManager(t *testing.T) *worker.Manager {
	t.Helper()
	return worker.NewManager(os.Args[0], 15*time.Second, zerolog.Nop())
}

func stopAll(t *testing.T, mgr *worker.Manager, dbPaths ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range dbPaths {
		_ = mgr.StopWorker(ctx, p)
	}
}

func TestGetOrStartWorkerSpawns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "spawn.db")
	mgr := newManager(t)
	defer stopAll(t, mgr, dbPath)

	info, err := mgr.GetOrStartWorker(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, info.DBPath)
	assert.Equal(t, types.SocketPath(dbPath), info.SocketPath)
	assert.True(t, worker.Alive(info.PID))

	// The worker created the database file, empty, no schema.
	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	pid, err := worker.ReadPIDFile(types.PIDPath(dbPath))
	require.NoError(t, err)
	assert.Equal(t, info.PID, pid)
}

func TestGetOrStartWorkerReuses(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reuse.db")
	mgr := newManager(t)
	defer stopAll(t, mgr, dbPath)

	first, err := mgr.GetOrStartWorker(context.Background(), dbPath)
	require.NoError(t, err)
	second, err := mgr.GetOrStartWorker(context.Background(), dbPath)
	require.NoError(t, err)

	assert.Equal(t, first.PID, second.PID, "a live worker must be reused, not respawned")
}

func TestGetOrStartWorkerConcurrent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "race.db")
	mgr := newManager(t)
	defer stopAll(t, mgr, dbPath)

	const callers = 4
	results := make(chan types.WorkerInfo, callers)
	errs := make(chan error, callers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		go func() {
			start.Wait()
			info, err := mgr.GetOrStartWorker(context.Background(), dbPath)
			results <- info
			errs <- err
		}()
	}
	start.Done()

	infos := make([]types.WorkerInfo, 0, callers)
	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs, "every concurrent caller must get a worker")
		infos = append(infos, <-results)
	}
	for _, info := range infos {
		assert.Equal(t, infos[0].PID, info.PID, "all callers must share one worker")
		assert.Equal(t, types.SocketPath(dbPath), info.SocketPath)
	}
	assert.True(t, worker.Alive(infos[0].PID))
}

func TestGetOrStartWorkerCleansStalePIDFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stale.db")
	mgr := newManager(t)
	defer stopAll(t, mgr, dbPath)

	// Simulate a crashed worker: a PID file pointing at an exited process.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	stalePID := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	require.NoError(t, worker.WritePIDFile(types.PIDPath(dbPath), stalePID))

	info, err := mgr.GetOrStartWorker(context.Background(), dbPath)
	require.NoError(t, err)
	assert.NotEqual(t, stalePID, info.PID)
	assert.True(t, worker.Alive(info.PID))
}

func TestStopWorker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stop.db")
	mgr := newManager(t)

	info, err := mgr.GetOrStartWorker(context.Background(), dbPath)
	require.NoError(t, err)

	require.NoError(t, mgr.StopWorker(context.Background(), dbPath))

	// The worker removed its own PID file on the way out.
	require.Eventually(t, func() bool {
		_, err := os.Stat(types.PIDPath(dbPath))
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, worker.Alive(info.PID))
}

func TestStopWorkerWithoutPIDFile(t *testing.T) {
	mgr := newManager(t)
	assert.NoError(t, mgr.StopWorker(context.Background(), filepath.Join(t.TempDir(), "never.db")))
}

func TestRegistryShutdownStopsEverything(t *testing.T) {
	dir := t.TempDir()
	mgr := newManager(t)
	reg := worker.NewRegistry(mgr)

	a, err := reg.Acquire(context.Background(), filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	b, err := reg.Acquire(context.Background(), filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.Len(t, reg.Tracked(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))

	require.Eventually(t, func() bool {
		return !worker.Alive(a.PID) && !worker.Alive(b.PID)
	}, 5*time.Second, 50*time.Millisecond)
	assert.Empty(t, reg.Tracked())
}
