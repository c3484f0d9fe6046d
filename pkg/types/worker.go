package types

import "time"

// WorkerInfo identifies a live database worker process. The PID file at
// PIDPath(dbPath) holds only the integer PID; the socket path is derived
// from the database path, so an info value can always be reconstructed
// from the PID file plus the path it was found at.
type WorkerInfo struct {
	PID        int       `json:"pid"`
	SocketPath string    `json:"socket_path"`
	DBPath     string    `json:"db_path"`
	StartedAt  time.Time `json:"started_at"`
}

// PIDPath returns the well-known PID file location for a database file.
func PIDPath(dbPath string) string {
	return dbPath + ".worker.pid"
}

// SocketPath returns the well-known worker socket location for a database file.
func SocketPath(dbPath string) string {
	return dbPath + ".worker.sock"
}

// WorkerEnvMarker is the environment flag identifying the authorized
// direct-access worker process. The direct driver refuses to connect
// unless it is set.
const WorkerEnvMarker = "CODESCOPE_DB_WORKER"
