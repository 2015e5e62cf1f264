package backup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultKeepLast = 10
	filePrefix      = "results-"
	stampLayout     = "20060102-150405"
	runIDLen        = 8
)

// Keeper takes one snapshot of the store per successful batch, uploads it
// when a bucket is configured and prunes old local copies.
type Keeper struct {
	src      Source
	dir      string
	keep     int
	ext      string
	uploader Uploader
	logger   *zap.Logger
	now      func() time.Time
}

// NewKeeper returns nil when cfg.Dir is empty.
func NewKeeper(src Source, cfg Config, logger *zap.Logger) (*Keeper, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, nil
	}
	if src == nil {
		return nil, errors.New("backup: nil source")
	}
	dbPath := strings.TrimSpace(src.DBPath())
	if dbPath == "" {
		return nil, errors.New("backup: db-path is empty (in-memory store)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	k := &Keeper{
		src:    src,
		dir:    dir,
		keep:   cmp.Or(max(cfg.KeepLast, 0), defaultKeepLast),
		ext:    cmp.Or(filepath.Ext(dbPath), ".db"),
		logger: logger,
		now:    time.Now,
	}
	if strings.TrimSpace(cfg.S3.BucketURL) != "" {
		u, err := NewS3Uploader(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		k.uploader = u
	}
	return k, nil
}

// snapshotName leads with the UTC timestamp so names sort chronologically.
func (k *Keeper) snapshotName(runID string) string {
	if len(runID) > runIDLen {
		runID = runID[:runIDLen]
	}
	return filePrefix + k.now().UTC().Format(stampLayout) + "-" + runID + k.ext
}

// Take writes a snapshot named after the batch start time and run ID and
// returns its path. The path is returned with upload or prune errors since
// the local copy exists by then.
func (k *Keeper) Take(ctx context.Context, runID string) (string, error) {
	name := k.snapshotName(runID)
	path := filepath.Join(k.dir, name)

	if err := k.src.SnapshotTo(path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	k.logger.Debug("snapshot written", zap.String("path", path))

	if k.uploader != nil {
		if err := k.uploader.UploadFile(ctx, path); err != nil {
			return path, fmt.Errorf("upload: %w", err)
		}
		k.logger.Info("snapshot uploaded", zap.String("file", name))
	}

	removed, err := k.prune()
	if err != nil {
		return path, fmt.Errorf("prune snapshots: %w", err)
	}
	if removed > 0 {
		k.logger.Debug("old snapshots pruned", zap.Int("removed", removed))
	}
	return path, nil
}

// prune deletes all but the newest k.keep snapshots and reports how many
// it removed.
func (k *Keeper) prune() (int, error) {
	matches, err := filepath.Glob(filepath.Join(k.dir, filePrefix+"*"+k.ext))
	if err != nil || len(matches) <= k.keep {
		return 0, err
	}

	slices.Sort(matches)
	stale := matches[:len(matches)-k.keep]
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return len(stale), nil
}
