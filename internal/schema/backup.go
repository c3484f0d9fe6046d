package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BackupRecord identifies one pre-migration file-level backup. Backups are
// write-once; restoring is an explicit administrative operation.
type BackupRecord struct {
	ID           string
	FilePath     string
	SidecarFiles []string
	CreatedAt    time.Time
}

// walSidecars are the write-ahead/journal companions that must be copied
// with the main file for a consistent backup.
var walSidecars = []string{"-wal", "-shm", "-journal"}

// CreateBackup copies the database file and any WAL/journal sidecars into
// backupDir. Layout: <backupDir>/database-<stem>-<timestamp>-<uuid>.db
func CreateBackup(dbPath, backupDir string) (*BackupRecord, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, &BackupError{Path: dbPath, Err: err}
	}

	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	id := uuid.New().String()
	ts := time.Now().UTC().Format("20060102T150405")
	base := fmt.Sprintf("database-%s-%s-%s.db", stem, ts, id)
	target := filepath.Join(backupDir, base)

	if err := copyFile(dbPath, target); err != nil {
		return nil, &BackupError{Path: dbPath, Err: err}
	}

	rec := &BackupRecord{
		ID:        id,
		FilePath:  target,
		CreatedAt: time.Now().UTC(),
	}
	for _, ext := range walSidecars {
		src := dbPath + ext
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := target + ext
		if err := copyFile(src, dst); err != nil {
			// A half-copied backup is worse than none; remove what we wrote.
			_ = os.Remove(target)
			for _, s := range rec.SidecarFiles {
				_ = os.Remove(s)
			}
			return nil, &BackupError{Path: src, Err: err}
		}
		rec.SidecarFiles = append(rec.SidecarFiles, dst)
	}
	return rec, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
