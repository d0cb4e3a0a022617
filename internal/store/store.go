// Package store implements the local content-addressed package store and
// its sqlite history index.
//
// Layout of a store root:
//
//	<root>/objs/<sha256>        immutable artifact bytes, named by digest
//	<root>/objs/tmp/            staging area for downloads and builds
//	<root>/<owner>/<name>.json  ref pointing a package at an object
//
// Artifacts are staged under objs/tmp, hashed while they are written, and
// renamed into objs/ only once their digest is known. Refs are replaced by
// rename as well. A reader therefore sees either the previous complete
// package or the new complete package, never a partial one, even when
// another process is installing the same package.
package store

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

const (
	objDir     = "objs"
	tmpDir     = "tmp"
	refExt     = ".json"
	dirPerm    = 0o755
	objectPerm = 0o644
)

// PruneGrace is how long an unreferenced object is protected from Prune.
const PruneGrace = time.Hour

// Mode selects whether Resolve may touch the filesystem.
type Mode int

const (
	// ModeRead resolves without side effects and searches every root.
	ModeRead Mode = iota
	// ModeWrite resolves in the primary root and creates its directories.
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// ProgressWriter receives the bytes of a transfer as they are copied.
type ProgressWriter interface {
	io.Writer
	Finish()
}

// ProgressFunc starts progress reporting for a transfer of total bytes;
// total is -1 when unknown.
type ProgressFunc func(description string, total int64) ProgressWriter

// Store is a set of package roots. The first root is writable; the rest
// are searched read-only.
type Store struct {
	roots    []string
	client   *http.Client
	logger   *slog.Logger
	progress ProgressFunc
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithReadOnlyRoots adds roots searched after the primary one.
func WithReadOnlyRoots(roots ...string) Option {
	return func(s *Store) {
		for _, r := range roots {
			if r != "" && r != s.roots[0] {
				s.roots = append(s.roots, r)
			}
		}
	}
}

// WithHTTPClient sets the client used to download artifacts.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithProgress reports download progress through fn.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Store) { s.progress = fn }
}

// WithClock overrides time.Now for ref timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open returns a Store rooted at root. Nothing is created on disk until a
// package is resolved in ModeWrite.
func Open(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}

	s := &Store{
		roots:  []string{abs},
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the primary, writable root.
func (s *Store) Root() string {
	return s.roots[0]
}

// Roots returns every root, primary first.
func (s *Store) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// EntryAt returns the read-only entry for id in one specific root, even
// when an earlier root shadows it.
func (s *Store) EntryAt(root string, id pkgid.ID) (*Entry, error) {
	if !slices.Contains(s.roots, root) {
		return nil, fmt.Errorf("%s is not a store root", root)
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.entry(root, id, ModeRead), nil
}

// Resolve returns the entry for id. In ModeRead the first root holding the
// package wins; if none does, the primary root's (absent) entry is returned.
// In ModeWrite the primary root's directories are created if missing.
func (s *Store) Resolve(id pkgid.ID, mode Mode) (*Entry, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if id.Owner == objDir {
		return nil, apperr.NewStore("Owner name %q is reserved.", objDir)
	}

	if mode == ModeWrite {
		root := s.roots[0]
		for _, dir := range []string{
			filepath.Join(root, id.Owner),
			filepath.Join(root, objDir, tmpDir),
		} {
			if err := os.MkdirAll(dir, dirPerm); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		return s.entry(root, id, mode), nil
	}

	for _, root := range s.roots {
		e := s.entry(root, id, mode)
		if e.Exists() {
			return e, nil
		}
	}
	return s.entry(s.roots[0], id, mode), nil
}

func (s *Store) entry(root string, id pkgid.ID, mode Mode) *Entry {
	return &Entry{store: s, root: root, id: id, mode: mode}
}

func objectPath(root, hash string) string {
	return filepath.Join(root, objDir, hash)
}

func refPath(root string, id pkgid.ID) string {
	return filepath.Join(root, id.Owner, id.Name+refExt)
}

func stagingDir(root string) string {
	return filepath.Join(root, objDir, tmpDir)
}
