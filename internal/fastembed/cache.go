package fastembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRevision = "main"
	modelDirPrefix  = "models--"

	// fetchTimeout bounds a shared fetch once it no longer follows any caller.
	fetchTimeout = 30 * time.Minute
)

// Cache stores model artifacts on disk in the Hugging Face hub layout:
//
//	<dir>/models--<org>--<name>/refs/main
//	<dir>/models--<org>--<name>/snapshots/<sha>/<files>
//
// A model is cached when refs/main names a snapshot holding every required
// file. Files and refs are written to a temp file and renamed into place, so
// a partially written artifact is never observed under its final name.
type Cache struct {
	dir    string
	hub    *Hub
	group  singleflight.Group
	logger *zap.Logger
}

// NewCache creates a cache rooted at dir that fetches misses from hub.
func NewCache(dir string, hub *Hub, logger *zap.Logger) *Cache {
	return &Cache{dir: dir, hub: hub, logger: logger}
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// Snapshot is the cache state of one model.
type Snapshot struct {
	Repo     string
	Revision string
	Dir      string
	Missing  []string
}

// Complete reports whether the snapshot can be used without the network.
func (s Snapshot) Complete() bool {
	return s.Revision != "" && len(s.Missing) == 0
}

func (c *Cache) modelDir(repo string) string {
	return filepath.Join(c.dir, modelDirPrefix+strings.ReplaceAll(repo, "/", "--"))
}

func (c *Cache) refPath(repo string) string {
	return filepath.Join(c.modelDir(repo), "refs", defaultRevision)
}

func (c *Cache) snapshotDir(repo, sha string) string {
	return filepath.Join(c.modelDir(repo), "snapshots", sha)
}

// Lookup inspects the cache for d. It only checks for file presence.
func (c *Cache) Lookup(d ModelDescriptor) Snapshot {
	snap := Snapshot{Repo: d.Source}
	ref, err := os.ReadFile(c.refPath(d.Source))
	if err == nil {
		snap.Revision = strings.TrimSpace(string(ref))
	}
	if snap.Revision == "" {
		snap.Missing = d.RequiredFiles()
		return snap
	}
	snap.Dir = c.snapshotDir(d.Source, snap.Revision)
	snap.Missing = missingFiles(snap.Dir, d.RequiredFiles())
	return snap
}

func missingFiles(dir string, files []string) []string {
	var missing []string
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil || info.IsDir() {
			missing = append(missing, f)
		}
	}
	return missing
}

// Ensure returns the snapshot directory holding d's artifacts, downloading
// whatever is missing. Concurrent calls for the same model share one fetch.
// The fetch is detached from the caller that started it: each caller stops
// waiting when its own ctx ends while the download continues for the rest.
func (c *Cache) Ensure(ctx context.Context, d ModelDescriptor) (string, error) {
	if snap := c.Lookup(d); snap.Complete() {
		c.logger.Debug("model cache hit", zap.String("repo", d.Source), zap.String("revision", snap.Revision))
		return snap.Dir, nil
	}
	ch := c.group.DoChan(d.Source, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, d)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("fastembed: waiting for %s: %w", d.Source, ctx.Err())
	}
}

func (c *Cache) fetch(ctx context.Context, d ModelDescriptor) (string, error) {
	snap := c.Lookup(d)
	if snap.Complete() {
		return snap.Dir, nil
	}

	sha := snap.Revision
	if sha == "" {
		var err error
		sha, err = c.hub.ResolveRevision(ctx, d.Source, defaultRevision)
		if err != nil {
			return "", fmt.Errorf("fastembed: resolve %s: %w", d.Source, err)
		}
	}
	dir := c.snapshotDir(d.Source, sha)
	missing := missingFiles(dir, d.RequiredFiles())

	c.logger.Info("fetching model artifacts",
		zap.String("repo", d.Source),
		zap.String("revision", sha),
		zap.Strings("files", missing),
	)
	for _, f := range missing {
		dst := filepath.Join(dir, filepath.FromSlash(f))
		err := writeAtomic(dst, func(w io.Writer) error {
			return c.hub.Download(ctx, d.Source, sha, f, w)
		})
		if err != nil {
			return "", fmt.Errorf("fastembed: fetch %s/%s: %w", d.Source, f, err)
		}
	}

	// The ref goes last: it is what turns the snapshot into a cache hit.
	err := writeAtomic(c.refPath(d.Source), func(w io.Writer) error {
		_, err := io.WriteString(w, sha)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("fastembed: write ref for %s: %w", d.Source, err)
	}
	return dir, nil
}

// writeAtomic writes path through a temp file in the same directory.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CachedModel summarises one model directory for diagnostics.
type CachedModel struct {
	Repo      string
	Revision  string
	Snapshots []string
	Files     int
	Bytes     int64
}

// Inspect walks the cache root and reports every model directory in it.
func (c *Cache) Inspect() ([]CachedModel, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fastembed: read cache dir: %w", err)
	}

	var out []CachedModel
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), modelDirPrefix) {
			continue
		}
		repo := strings.ReplaceAll(strings.TrimPrefix(e.Name(), modelDirPrefix), "--", "/")
		m := CachedModel{Repo: repo}
		if ref, err := os.ReadFile(c.refPath(repo)); err == nil {
			m.Revision = strings.TrimSpace(string(ref))
		}
		if snaps, err := os.ReadDir(filepath.Join(c.modelDir(repo), "snapshots")); err == nil {
			for _, s := range snaps {
				if s.IsDir() {
					m.Snapshots = append(m.Snapshots, s.Name())
				}
			}
		}
		root := filepath.Join(c.dir, e.Name())
		err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			m.Files++
			m.Bytes += info.Size()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fastembed: walk %s: %w", root, err)
		}
		out = append(out, m)
	}
	return out, nil
}
