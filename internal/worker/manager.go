package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/codescope/codescope/internal/rpc"
	"github.com/codescope/codescope/pkg/types"
)

// Manager starts, reuses and stops worker processes, one per database
// file. A PID file is trusted only while its recorded process is alive;
// stale files are cleaned up transparently.
type Manager struct {
	executable   string
	startTimeout time.Duration
	stopTimeout  time.Duration
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-dbPath, serializes start attempts
}

// NewManager creates a lifecycle manager spawning the given worker binary.
// An empty executable means re-invoking the current binary in worker mode.
func NewManager(executable string, startTimeout time.Duration, log zerolog.Logger) *Manager {
	if startTimeout <= 0 {
		startTimeout = 10 * time.Second
	}
	return &Manager{
		executable:   executable,
		startTimeout: startTimeout,
		stopTimeout:  5 * time.Second,
		log:          log,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (m *Manager) pathLock(dbPath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[dbPath]
	if !ok {
		l = &sync.Mutex{}
		m.locks[dbPath] = l
	}
	return l
}

// GetOrStartWorker returns a live worker for dbPath, reusing a running one
// when its PID file checks out and spawning a fresh process otherwise.
// Concurrent callers for the same path all get the same worker: starts are
// serialized in-process, and a spawn that loses a cross-process race falls
// back to the winner's worker.
func (m *Manager) GetOrStartWorker(ctx context.Context, dbPath string) (types.WorkerInfo, error) {
	lock := m.pathLock(dbPath)
	lock.Lock()
	defer lock.Unlock()

	pidPath := types.PIDPath(dbPath)
	socketPath := types.SocketPath(dbPath)

	if pid, err := ReadPIDFile(pidPath); err == nil {
		if Alive(pid) {
			return types.WorkerInfo{PID: pid, SocketPath: socketPath, DBPath: dbPath}, nil
		}
		m.log.Debug().Int("pid", pid).Str("db", dbPath).Msg("removing stale worker pid file")
		_ = os.Remove(pidPath)
		_ = os.Remove(socketPath)
	}

	return m.spawn(ctx, dbPath, pidPath, socketPath)
}

func (m *Manager) spawn(ctx context.Context, dbPath, pidPath, socketPath string) (types.WorkerInfo, error) {
	exe := m.executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return types.WorkerInfo{}, fmt.Errorf("resolve worker executable: %w", err)
		}
		exe = self
	}

	cmd := exec.Command(exe, "--db", dbPath, "--socket", socketPath)
	cmd.Env = append(os.Environ(), types.WorkerEnvMarker+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true} // detach from our session
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return types.WorkerInfo{}, fmt.Errorf("spawn worker for %s: %w", dbPath, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	m.log.Info().Int("pid", pid).Str("db", dbPath).Msg("spawned database worker")

	// Wait for the worker to write its PID file and open its socket.
	info, err := m.awaitReady(ctx, dbPath, pidPath, socketPath, pid)
	if err != nil {
		// Another process may have won the start race; our spawn then saw
		// the winner's PID file and exited. Use the winner.
		if winner, ok := m.lookupRunning(ctx, dbPath, pidPath, socketPath); ok {
			m.log.Debug().Int("pid", winner.PID).Str("db", dbPath).Msg("reusing worker started by another process")
			return winner, nil
		}
		return types.WorkerInfo{}, err
	}
	return info, nil
}

// lookupRunning reports a live, responding worker for dbPath if one exists.
func (m *Manager) lookupRunning(ctx context.Context, dbPath, pidPath, socketPath string) (types.WorkerInfo, bool) {
	pid, err := ReadPIDFile(pidPath)
	if err != nil || !Alive(pid) {
		return types.WorkerInfo{}, false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rpc.NewClient(socketPath).Ping(pingCtx); err != nil {
		return types.WorkerInfo{}, false
	}
	return types.WorkerInfo{PID: pid, SocketPath: socketPath, DBPath: dbPath}, true
}

func (m *Manager) awaitReady(ctx context.Context, dbPath, pidPath, socketPath string, pid int) (types.WorkerInfo, error) {
	deadline := time.Now().Add(m.startTimeout)
	client := rpc.NewClient(socketPath)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		recorded, err := ReadPIDFile(pidPath)
		if err == nil && recorded == pid {
			if err := client.Ping(ctx); err == nil {
				return types.WorkerInfo{PID: pid, SocketPath: socketPath, DBPath: dbPath, StartedAt: time.Now()}, nil
			}
		}
		if !Alive(pid) {
			return types.WorkerInfo{}, fmt.Errorf("worker for %s exited during startup", dbPath)
		}
		if time.Now().After(deadline) {
			return types.WorkerInfo{}, fmt.Errorf("worker for %s did not become ready within %s", dbPath, m.startTimeout)
		}
		select {
		case <-ctx.Done():
			return types.WorkerInfo{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StopWorker gracefully stops the worker for dbPath: SIGTERM, bounded
// wait, then SIGKILL. A missing or stale PID file is not an error.
func (m *Manager) StopWorker(ctx context.Context, dbPath string) error {
	pidPath := types.PIDPath(dbPath)
	socketPath := types.SocketPath(dbPath)

	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil
	}
	if !Alive(pid) {
		_ = os.Remove(pidPath)
		_ = os.Remove(socketPath)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal worker %d: %w", pid, err)
	}

	deadline := time.Now().Add(m.stopTimeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for Alive(pid) {
		if time.Now().After(deadline) {
			m.log.Warn().Int("pid", pid).Str("db", dbPath).Msg("worker ignored SIGTERM, killing")
			_ = proc.Signal(syscall.SIGKILL)
			// The killed worker cannot clean up after itself.
			RemovePIDFileIfOwn(pidPath, pid)
			_ = os.Remove(socketPath)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
