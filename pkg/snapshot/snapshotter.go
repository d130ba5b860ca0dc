package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Config configures a Snapshotter.
type Config struct {
	Root        string    // relative FileSet paths resolve against Root
	Algorithm   Algorithm // defaults to XXHash
	Concurrency int       // parallel file hashes; <= 0 means GOMAXPROCS
	Excludes    []string  // applied to every FileSet, after DefaultExcludes
}

// Snapshotter builds FileCollectionSnapshots by walking the filesystem.
// It is safe for concurrent use. Snapshots are cached per FileSet so that
// callers allowing reuse skip rescanning.
type Snapshotter struct {
	root        string
	algorithm   Algorithm
	concurrency int
	excludes    []string

	mu    sync.Mutex
	cache map[string]*FileCollectionSnapshot
	group singleflight.Group
}

// NewSnapshotter creates a snapshotter with the given config.
func NewSnapshotter(cfg Config) *Snapshotter {
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = XXHash
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Snapshotter{
		root:        root,
		algorithm:   algorithm,
		concurrency: concurrency,
		excludes:    append(append([]string(nil), DefaultExcludes...), cfg.Excludes...),
		cache:       make(map[string]*FileCollectionSnapshot),
	}
}

// Root returns the absolute root directory.
func (s *Snapshotter) Root() string {
	return s.root
}

// Snapshot captures the current state of files. With allowReuse, a snapshot
// previously captured for an identical FileSet is returned without touching
// the filesystem.
func (s *Snapshotter) Snapshot(ctx context.Context, files FileSet, allowReuse bool) (*FileCollectionSnapshot, error) {
	key := files.Key()
	if !allowReuse {
		snap, err := s.scan(ctx, files)
		if err != nil {
			return nil, err
		}
		s.remember(key, snap)
		return snap, nil
	}

	if snap, ok := s.cached(key); ok {
		return snap, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		snap, err := s.scan(ctx, files)
		if err != nil {
			return nil, err
		}
		s.remember(key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FileCollectionSnapshot), nil
}

// Invalidate drops every cached snapshot.
func (s *Snapshotter) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
}

// Normalize converts a path to the form used as snapshot keys: slash
// separated and relative to the root when inside it, absolute otherwise.
func (s *Snapshotter) Normalize(path string) string {
	return s.normalizeAbs(s.resolve(path))
}

// Excluded reports whether path matches the snapshotter-wide excludes.
func (s *Snapshotter) Excluded(path string) bool {
	return newExcluder(s.excludes).match(s.Normalize(path))
}

func (s *Snapshotter) cached(key string) (*FileCollectionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.cache[key]
	return snap, ok
}

func (s *Snapshotter) remember(key string, snap *FileCollectionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = snap
}

func (s *Snapshotter) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	return filepath.Clean(path)
}

func (s *Snapshotter) normalizeAbs(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// walkState accumulates entries for a single scan.
type walkState struct {
	ctx      context.Context
	excluded excluder
	entries  map[string]*Entry
	files    map[string]string // normalized path -> absolute path, to hash
}

func (s *Snapshotter) scan(ctx context.Context, files FileSet) (*FileCollectionSnapshot, error) {
	st := &walkState{
		ctx:      ctx,
		excluded: newExcluder(s.excludes, files.Excludes),
		entries:  make(map[string]*Entry),
		files:    make(map[string]string),
	}

	for _, p := range files.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if isPattern(p) {
			err = s.addPattern(st, p)
		} else {
			err = s.addPath(st, s.resolve(p), true)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.hashFiles(ctx, st); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, *e)
	}
	return New(s.algorithm, entries), nil
}

func isPattern(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// addPattern expands a doublestar pattern and adds each match.
func (s *Snapshotter) addPattern(st *walkState, pattern string) error {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	baseAbs := s.resolve(filepath.FromSlash(base))

	info, err := os.Stat(baseAbs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", baseAbs, err)
	}
	if !info.IsDir() {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(baseAbs), rest)
	if err != nil {
		return fmt.Errorf("failed to expand pattern %q: %w", pattern, err)
	}
	for _, m := range matches {
		if err := s.addPath(st, filepath.Join(baseAbs, filepath.FromSlash(m)), false); err != nil {
			return err
		}
	}
	return nil
}

// addPath records abs. Directories are walked recursively. A declared path
// that does not exist is recorded as missing, as is a dangling link matched
// by a glob; a glob match that vanished between expansion and stat is
// ignored.
func (s *Snapshotter) addPath(st *walkState, abs string, declared bool) error {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		// A dangling link matched by a glob still exists as a path.
		if _, lerr := os.Lstat(abs); declared || lerr == nil {
			s.addMissing(st, abs)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if !info.IsDir() {
		if info.Mode().IsRegular() {
			s.addFile(st, abs, info)
		}
		return nil
	}

	// DirFS follows abs itself when it is a link to a directory.
	return fs.WalkDir(os.DirFS(abs), ".", func(rel string, d fs.DirEntry, err error) error {
		// Check context cancellation
		select {
		case <-st.ctx.Done():
			return st.ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		path := filepath.Join(abs, filepath.FromSlash(rel))

		norm := s.normalizeAbs(path)
		if st.excluded.match(norm) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			st.entries[norm] = &Entry{Path: norm, Fingerprint: Fingerprint{Kind: KindDir}}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return s.addLink(st, path)
		}

		if !d.Type().IsRegular() {
			return nil // sockets, pipes and devices carry no content
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		s.addFile(st, path, info)
		return nil
	})
}

// addLink records a symlink found while walking by what it points to.
// Links to directories are not followed.
func (s *Snapshotter) addLink(st *walkState, abs string) error {
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.addMissing(st, abs)
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	case info.IsDir():
		norm := s.normalizeAbs(abs)
		st.entries[norm] = &Entry{Path: norm, Fingerprint: Fingerprint{Kind: KindDir}}
	case info.Mode().IsRegular():
		s.addFile(st, abs, info)
	}
	return nil
}

func (s *Snapshotter) addMissing(st *walkState, abs string) {
	norm := s.normalizeAbs(abs)
	if st.excluded.match(norm) {
		return
	}
	st.entries[norm] = &Entry{Path: norm, Fingerprint: Fingerprint{Kind: KindMissing}}
}

func (s *Snapshotter) addFile(st *walkState, abs string, info fs.FileInfo) {
	norm := s.normalizeAbs(abs)
	if st.excluded.match(norm) {
		return
	}
	st.entries[norm] = &Entry{
		Path: norm,
		Fingerprint: Fingerprint{
			Kind:    KindFile,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		},
	}
	st.files[norm] = abs
}

// hashFiles fills in content hashes, bounded by the configured concurrency.
func (s *Snapshotter) hashFiles(ctx context.Context, st *walkState) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for norm, abs := range st.files {
		entry := st.entries[norm]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hash, err := s.algorithm.HashFile(abs)
			if err != nil {
				return fmt.Errorf("failed to fingerprint %s: %w", norm, err)
			}
			entry.Hash = hash
			return nil
		})
	}
	return g.Wait()
}
