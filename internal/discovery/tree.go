// Package discovery enumerates sidecar records under a root directory.
package discovery

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/starford/sidestamp/internal/apperr"
)

// SidecarExt is the file extension of sidecar records.
const SidecarExt = ".json"

// Tree is a root directory holding images and their sidecars.
type Tree struct {
	root string // absolute path
}

// Open resolves root and checks that it is an existing directory.
func Open(root string) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("discovery: %s: %w", abs, apperr.ErrDirectoryNotFound)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discovery: not a directory %s: %w", abs, apperr.ErrDirectoryNotFound)
	}
	return &Tree{root: abs}, nil
}

// Root returns the absolute root path.
func (t *Tree) Root() string {
	return t.root
}

// Resolve resolves a path relative to the root and rejects any result that
// escapes it.
func (t *Tree) Resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return t.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("discovery: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidPath)
	}
	abs, err := filepath.Abs(filepath.Join(t.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("discovery: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, t.root+string(os.PathSeparator)) && abs != t.root {
		return "", fmt.Errorf("discovery: path escapes root: %s: %w", rel, apperr.ErrInvalidPath)
	}
	return abs, nil
}

// Sub returns the tree rooted at rel (relative to t).
func (t *Tree) Sub(rel string) (*Tree, error) {
	abs, err := t.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return Open(abs)
}

// Sidecars yields the absolute path of every sidecar file in the tree.
//
// The sequence is lazy and may be iterated again; each iteration walks the
// tree afresh. Directory entries are visited in natural order. Directories
// that cannot be read are skipped.
func (t *Tree) Sidecars() iter.Seq[string] {
	return func(yield func(string) bool) {
		walk(t.root, yield)
	}
}

// Count walks the tree once and returns the number of sidecars.
func (t *Tree) Count() int {
	n := 0
	for range t.Sidecars() {
		n++
	}
	return n
}

// walk returns false once yield asks to stop.
func walk(dir string, yield func(string) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	sort.Slice(entries, func(i, j int) bool {
		return natural.Less(entries[i].Name(), entries[j].Name())
	})
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if !walk(p, yield) {
				return false
			}
			continue
		}
		if !strings.HasSuffix(e.Name(), SidecarExt) {
			continue
		}
		if !yield(p) {
			return false
		}
	}
	return true
}
