package store

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

// FindPackageDirs yields the roots that hold at least one installed
// package. Roots are inspected lazily, in order, each time the sequence is
// ranged over.
func FindPackageDirs(roots []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, root := range roots {
			ids, err := ListPackages(root)
			if err != nil || len(ids) == 0 {
				continue
			}
			if !yield(root) {
				return
			}
		}
	}
}

// ListPackages returns the packages installed under root, sorted by owner
// then name. A root that does not exist holds no packages.
func ListPackages(root string) ([]pkgid.ID, error) {
	owners, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store root %s: %w", root, err)
	}

	s := &Store{roots: []string{root}}
	var ids []pkgid.ID
	for _, owner := range owners {
		if !owner.IsDir() || owner.Name() == objDir {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read owner directory %s: %w", owner.Name(), err)
		}
		for _, f := range files {
			name, ok := strings.CutSuffix(f.Name(), refExt)
			if !ok || f.IsDir() {
				continue
			}
			id := pkgid.ID{Owner: owner.Name(), Name: name}
			if id.Validate() != nil {
				continue
			}
			if s.entry(root, id, ModeRead).Exists() {
				ids = append(ids, id)
			}
		}
	}

	slices.SortFunc(ids, pkgid.Compare)
	return ids, nil
}

// Packages lists installed packages across every root. A package present in
// several roots is reported once, from the first root holding it.
func (s *Store) Packages() ([]*Entry, error) {
	seen := make(map[pkgid.ID]bool)
	var entries []*Entry
	for root := range FindPackageDirs(s.roots) {
		ids, err := ListPackages(root)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			entries = append(entries, s.entry(root, id, ModeRead))
		}
	}
	slices.SortFunc(entries, func(a, b *Entry) int { return pkgid.Compare(a.id, b.id) })
	return entries, nil
}

// Prune deletes objects in the primary root that no ref points at and
// returns the number of bytes reclaimed. Objects modified within
// PruneGrace are kept: an install in another process renames its object
// into place before it writes the ref.
func (s *Store) Prune() (int64, error) {
	root := s.roots[0]
	live := make(map[string]bool)

	ids, err := ListPackages(root)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		r, err := s.entry(root, id, ModeRead).readRef()
		if err != nil {
			continue
		}
		live[r.Hash] = true
	}

	objs, err := os.ReadDir(filepath.Join(root, objDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read objects: %w", err)
	}

	var reclaimed int64
	for _, obj := range objs {
		if obj.IsDir() || !validHash(obj.Name()) || live[obj.Name()] {
			continue
		}
		info, err := obj.Info()
		if err != nil {
			continue
		}
		if s.now().Sub(info.ModTime()) < PruneGrace {
			s.logger.Debug("keeping recent object", "hash", obj.Name())
			continue
		}
		if err := os.Remove(objectPath(root, obj.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return reclaimed, fmt.Errorf("failed to remove object %s: %w", obj.Name(), err)
		}
		reclaimed += info.Size()
		s.logger.Debug("pruned object", "hash", obj.Name(), "bytes", info.Size())
	}
	return reclaimed, nil
}
