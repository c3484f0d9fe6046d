package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/internal/database"
	"github.com/codescope/codescope/internal/parser"
)

// ErrIndexInProgress is returned when an index run is already running on
// this Indexer.
var ErrIndexInProgress = errors.New("an index operation is already in progress")

// Indexer coordinates the indexing pipeline: discover -> parse -> store.
// Parsing runs on a worker pool; writes go through the database facade in
// batched transactions.
type Indexer struct {
	db     *database.DB
	parser *parser.Parser
	log    zerolog.Logger

	lock IndexLock
}

// Config contains configuration for one index run.
type Config struct {
	Workers       int  // parse concurrency (default: runtime.NumCPU())
	BatchSize     int  // files committed per transaction (default: 20)
	IncludeTests  bool // whether to index _test.go files
	IncludeVendor bool // whether to index vendor directories
	Force         bool // reindex files whose hash is unchanged
}

// Statistics summarizes one index run.
type Statistics struct {
	ProjectID        int64
	FilesIndexed     int
	FilesSkipped     int
	FilesFailed      int
	SymbolsExtracted int
	ChunksCreated    int
	Duration         time.Duration
	ErrorMessages    []string
}

// New creates an Indexer writing through db.
func New(db *database.DB, log zerolog.Logger) *Indexer {
	return &Indexer{db: db, parser: parser.New(), log: log}
}

// parsedFile is the parse-stage output for one file, ready to store.
type parsedFile struct {
	relPath string
	hash    string
	size    int64
	modTime time.Time
	result  *parser.Result
	chunks  []chunk
}

// IndexProject indexes every Go file under rootPath. Unchanged files are
// skipped based on their content hash. Only one run per Indexer at a time.
func (idx *Indexer) IndexProject(ctx context.Context, rootPath string, cfg *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	if cfg == nil {
		cfg = &Config{IncludeTests: true}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}

	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &Statistics{}

	projectID, err := idx.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}
	stats.ProjectID = projectID

	files, err := discoverFiles(rootPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	parsed, err := idx.parseFiles(ctx, projectID, rootPath, files, cfg, stats)
	if err != nil {
		return nil, err
	}

	if err := idx.storeFiles(ctx, projectID, parsed, cfg.BatchSize, stats); err != nil {
		return nil, err
	}

	if len(parsed) > 0 {
		if err := idx.rebuildSymbolIndex(ctx); err != nil {
			return nil, fmt.Errorf("failed to rebuild symbol index: %w", err)
		}
	}

	if err := idx.updateProjectStats(ctx, projectID); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(start)
	idx.log.Info().
		Str("root", rootPath).
		Int("indexed", stats.FilesIndexed).
		Int("skipped", stats.FilesSkipped).
		Int("failed", stats.FilesFailed).
		Dur("took", stats.Duration).
		Msg("index run finished")
	return stats, nil
}

// parseFiles runs the parse stage concurrently. Failures are recorded per
// file; the run continues.
func (idx *Indexer) parseFiles(ctx context.Context, projectID int64, rootPath string, files []string, cfg *Config, stats *Statistics) ([]parsedFile, error) {
	// Hash lookups happen up front so workers never touch the database.
	known, err := idx.fileHashes(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		parsed []parsedFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			pf, skip, err := idx.parseOne(rootPath, path, known, cfg.Force)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.FilesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			case skip:
				stats.FilesSkipped++
			default:
				parsed = append(parsed, *pf)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (idx *Indexer) parseOne(rootPath, path string, known map[string]string, force bool) (*parsedFile, bool, error) {
	relPath, err := filepath.Rel(rootPath, path)
	if err != nil {
		return nil, false, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(src)
	hash := hex.EncodeToString(sum[:])
	if !force && known[relPath] == hash {
		return nil, true, nil
	}

	result, err := idx.parser.Parse(path, src)
	if err != nil {
		return nil, false, err
	}
	return &parsedFile{
		relPath: relPath,
		hash:    hash,
		size:    info.Size(),
		modTime: info.ModTime(),
		result:  result,
		chunks:  chunkSource(src, result.Symbols),
	}, false, nil
}

// storeFiles writes parse results in batched transactions.
func (idx *Indexer) storeFiles(ctx context.Context, projectID int64, parsed []parsedFile, batchSize int, stats *Statistics) error {
	for i := 0; i < len(parsed); i += batchSize {
		end := i + batchSize
		if end > len(parsed) {
			end = len(parsed)
		}
		batch := parsed[i:end]

		err := idx.db.WithTx(ctx, func(ctx context.Context) error {
			for _, pf := range batch {
				symbols, chunks, err := idx.storeFile(ctx, projectID, &pf)
				if err != nil {
					return fmt.Errorf("%s: %w", pf.relPath, err)
				}
				stats.FilesIndexed++
				stats.SymbolsExtracted += symbols
				stats.ChunksCreated += chunks
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// discoverFiles finds all Go files under rootPath.
func discoverFiles(rootPath string, cfg *Config) ([]string, error) {
	var files []string
	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !cfg.IncludeVendor && info.Name() == "vendor" {
				return filepath.SkipDir
			}
			if strings.HasPrefix(info.Name(), ".") && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !cfg.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
