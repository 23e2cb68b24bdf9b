package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// ErrNotEmpty is returned when the output root already holds files.
var ErrNotEmpty = errors.New("directory not empty")

// Tree is the mirrored output tree. Paths are slash separated and relative to
// the root the tree was opened on.
type Tree struct {
	fs   billy.Filesystem
	root string
}

// PrepareRoot makes sure root exists and is empty, then opens a tree on it.
func PrepareRoot(root string) (*Tree, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("output directory must be provided")
	}
	entries, err := os.ReadDir(root)
	switch {
	case err == nil:
		if len(entries) > 0 {
			return nil, fmt.Errorf("%s: %w", root, ErrNotEmpty)
		}
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	default:
		return nil, fmt.Errorf("read output directory: %w", err)
	}
	return &Tree{fs: osfs.New(root), root: root}, nil
}

// NewTree wraps an existing filesystem, typically memfs in tests.
func NewTree(fs billy.Filesystem) *Tree {
	return &Tree{fs: fs, root: fs.Root()}
}

// Root returns the directory the tree is rooted at.
func (t *Tree) Root() string {
	return t.root
}

// MakeDir creates dir and any missing parents.
func (t *Tree) MakeDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := t.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether name is present in the tree.
func (t *Tree) Exists(name string) (bool, error) {
	_, err := t.fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, err)
}

// WriteFile writes data to name, creating parent directories as needed.
func (t *Tree) WriteFile(name string, data []byte) error {
	if err := t.MakeDir(path.Dir(name)); err != nil {
		return err
	}
	if err := util.WriteFile(t.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// AppendFile appends data to name, creating it when missing.
func (t *Tree) AppendFile(name string, data []byte) error {
	fh, err := t.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if _, err := fh.Write(data); err != nil {
		_ = fh.Close()
		return fmt.Errorf("append %s: %w", name, err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the contents of name.
func (t *Tree) ReadFile(name string) ([]byte, error) {
	data, err := util.ReadFile(t.fs, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
