package worker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records pid at path. The file holds a single integer; the
// socket and database paths are derived from the file's own location.
func WritePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// ReadPIDFile reads the recorded PID from path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Alive probes whether the process exists, without signalling it.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}

// RemovePIDFileIfOwn removes the file only when it still records pid. A
// restarted worker may have overwritten it in the meantime; that file
// belongs to the new process.
func RemovePIDFileIfOwn(path string, pid int) {
	recorded, err := ReadPIDFile(path)
	if err != nil || recorded != pid {
		return
	}
	_ = os.Remove(path)
}
