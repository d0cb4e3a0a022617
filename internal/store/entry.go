package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// ref is the on-disk pointer from a package name to an object.
type ref struct {
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one package in one store root.
type Entry struct {
	store *Store
	root  string
	id    pkgid.ID
	mode  Mode
}

// ID returns the package identifier.
func (e *Entry) ID() pkgid.ID { return e.id }

// Root returns the store root the entry lives in.
func (e *Entry) Root() string { return e.root }

func (e *Entry) readRef() (*ref, error) {
	data, err := os.ReadFile(refPath(e.root, e.id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, e.notFound()
		}
		return nil, apperr.WrapStore(fmt.Sprintf("failed to read %s", e.id), err)
	}

	var r ref
	if err := json.Unmarshal(data, &r); err != nil || !validHash(r.Hash) {
		return nil, apperr.WrapStore(fmt.Sprintf("corrupt ref for %s", e.id), err)
	}
	info, err := os.Stat(objectPath(e.root, r.Hash))
	if err != nil || !info.Mode().IsRegular() {
		return nil, e.notFound()
	}
	return &r, nil
}

func (e *Entry) notFound() error {
	return &apperr.StoreError{
		Message: fmt.Sprintf("Package %s not found.", e.id),
		Err:     apperr.ErrNotFound,
	}
}

// Exists reports whether a complete, hash-verified artifact is present.
func (e *Entry) Exists() bool {
	_, err := e.readRef()
	return err == nil
}

// Hash returns the digest of the stored artifact.
func (e *Entry) Hash() (string, error) {
	r, err := e.readRef()
	if err != nil {
		return "", err
	}
	return r.Hash, nil
}

// Size returns the artifact size in bytes.
func (e *Entry) Size() (int64, error) {
	r, err := e.readRef()
	if err != nil {
		return 0, err
	}
	return r.Size, nil
}

// UpdatedAt returns when the entry last changed.
func (e *Entry) UpdatedAt() (time.Time, error) {
	r, err := e.readRef()
	if err != nil {
		return time.Time{}, err
	}
	return r.UpdatedAt, nil
}

// Path returns the artifact's local path.
func (e *Entry) Path() (string, error) {
	r, err := e.readRef()
	if err != nil {
		return "", err
	}
	return objectPath(e.root, r.Hash), nil
}

// Verify re-hashes the artifact and compares it with the ref.
func (e *Entry) Verify() error {
	r, err := e.readRef()
	if err != nil {
		return err
	}
	got, err := HashFile(objectPath(e.root, r.Hash))
	if err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to verify %s", e.id), err)
	}
	if got != r.Hash {
		return apperr.WrapStore(fmt.Sprintf("%s: stored artifact hashes to %s, expected %s", e.id, got, r.Hash), apperr.ErrHashMismatch)
	}
	return nil
}

// WithCompressed writes a gzip encoding of the artifact to a temporary file
// and passes it, rewound, to fn along with its size. The temporary file is
// removed however fn returns.
func (e *Entry) WithCompressed(fn func(f *os.File, size int64) error) error {
	path, err := e.Path()
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to open %s", e.id), err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "datapkg-upload-*.gz")
	if err != nil {
		return apperr.WrapStore("failed to create temporary file", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	gz := gzip.NewWriter(tmp)
	if _, err := io.Copy(gz, src); err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to compress %s", e.id), err)
	}
	if err := gz.Close(); err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to compress %s", e.id), err)
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return apperr.WrapStore("failed to size temporary file", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return apperr.WrapStore("failed to rewind temporary file", err)
	}

	return fn(tmp, size)
}

// Put stores the bytes of r as the package's artifact and returns their
// digest.
func (e *Entry) Put(r io.Reader) (string, error) {
	if err := e.requireWrite(); err != nil {
		return "", err
	}
	return e.commit(r, "", -1, "Storing "+e.id.String(), func(err error) error {
		return apperr.WrapStore(fmt.Sprintf("failed to store %s", e.id), err)
	})
}

// Install downloads url and installs it as the package's artifact, provided
// the content hashes to expectedHash. On any failure the previously
// installed artifact, if any, is left as it was.
func (e *Entry) Install(ctx context.Context, url, expectedHash string) error {
	if err := e.requireWrite(); err != nil {
		return err
	}
	if !validHash(expectedHash) {
		return apperr.NewStore("registry returned an invalid hash %q for %s", expectedHash, e.id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.WrapStore("invalid download URL", err)
	}

	e.store.logger.Debug("downloading package", "package", e.id.String(), "hash", expectedHash)
	resp, err := e.store.client.Do(req)
	if err != nil {
		return &apperr.RemoteError{Message: "Download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.RemoteError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Download failed: error %d", resp.StatusCode),
		}
	}

	_, err = e.commit(resp.Body, expectedHash, resp.ContentLength, "Downloading "+e.id.String(), func(err error) error {
		return &apperr.RemoteError{Message: fmt.Sprintf("Download of %s interrupted", e.id), Err: err}
	})
	return err
}

func (e *Entry) requireWrite() error {
	if e.mode != ModeWrite {
		return apperr.NewStore("%s was resolved read-only", e.id)
	}
	return nil
}

// commit stages r under objs/tmp while hashing it, checks the digest
// against expected (when non-empty), then renames the object into place
// and swaps the ref. Errors reading r are passed through readErr.
func (e *Entry) commit(r io.Reader, expected string, total int64, description string, readErr func(error) error) (string, error) {
	tmp, err := os.CreateTemp(stagingDir(e.root), "stage-*")
	if err != nil {
		return "", apperr.WrapStore("failed to create staging file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	var w io.Writer = tmp
	if e.store.progress != nil {
		p := e.store.progress(description, total)
		defer p.Finish()
		w = io.MultiWriter(tmp, p)
	}

	sum, size, err := HashReader(io.TeeReader(r, w))
	if err != nil {
		tmp.Close()
		return "", readErr(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", apperr.WrapStore("failed to sync staging file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.WrapStore("failed to close staging file", err)
	}

	if expected != "" && sum != expected {
		e.store.logger.Debug("discarding download", "package", e.id.String(), "expected", expected, "got", sum)
		return "", apperr.WrapStore(
			fmt.Sprintf("Failed to install %s: content hashes to %s, expected %s", e.id, sum, expected),
			apperr.ErrHashMismatch,
		)
	}

	if err := os.Chmod(tmpPath, objectPerm); err != nil {
		return "", apperr.WrapStore("failed to set object permissions", err)
	}
	if err := os.Rename(tmpPath, objectPath(e.root, sum)); err != nil {
		return "", apperr.WrapStore("failed to move object into place", err)
	}

	r2 := ref{Hash: sum, Size: size, UpdatedAt: e.store.now().UTC().Truncate(time.Second)}
	refFile := refPath(e.root, e.id)
	if err := os.MkdirAll(filepath.Dir(refFile), dirPerm); err != nil {
		return "", apperr.WrapStore(fmt.Sprintf("failed to record %s", e.id), err)
	}
	if err := writeRefAtomic(refFile, &r2); err != nil {
		return "", apperr.WrapStore(fmt.Sprintf("failed to record %s", e.id), err)
	}
	return sum, nil
}

// Remove deletes the package's ref. The object is reclaimed by
// Store.Prune once no ref points at it.
func (e *Entry) Remove() error {
	if err := e.requireWrite(); err != nil {
		return err
	}
	if _, err := e.readRef(); err != nil {
		return err
	}
	if err := os.Remove(refPath(e.root, e.id)); err != nil {
		return apperr.WrapStore(fmt.Sprintf("failed to remove %s", e.id), err)
	}
	return nil
}

// writeRefAtomic writes r to path via a temp-file rename, so a crash never
// leaves a truncated ref.
func writeRefAtomic(path string, r *ref) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ref-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ref: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ref: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ref: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ref: %w", err)
	}
	if err := os.Chmod(tmpPath, objectPerm); err != nil {
		return fmt.Errorf("chmod temp ref: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename ref: %w", err)
	}
	return nil
}
