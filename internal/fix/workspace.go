package fix

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const appliedDir = "applied"

// Workspace lays out the scratch directories that keep candidate variants
// away from the canonical working copy. Each source file gets its own
// subtree named after its repository path.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the scratch root.
func (w *Workspace) Root() string {
	return w.root
}

// FileDir returns the subtree holding every variant of file.
func (w *Workspace) FileDir(file pathutil.PathKey) (string, error) {
	if file.IsZero() {
		return "", fmt.Errorf("empty file key")
	}
	rel := strings.TrimSuffix(file.String(), path.Ext(file.String()))
	return pathutil.JoinAndValidate(w.root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// CandidateDir returns the scratch directory for one candidate of file.
func (w *Workspace) CandidateDir(file pathutil.PathKey, solutionID int) (string, error) {
	dir, err := w.FileDir(file)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("solution_%d", solutionID)), nil
}

// AppliedDir returns the directory used to measure the applied variant.
func (w *Workspace) AppliedDir(file pathutil.PathKey) (string, error) {
	dir, err := w.FileDir(file)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appliedDir), nil
}

// Materialize replaces dir with a directory holding only file's variant
// and returns the path of the written file.
func (w *Workspace) Materialize(dir string, file pathutil.PathKey, content string) (string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	target := filepath.Join(dir, file.Base())
	if err := os.WriteFile(target, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	return target, nil
}

// Reset removes every variant of file.
func (w *Workspace) Reset(file pathutil.PathKey) error {
	dir, err := w.FileDir(file)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// Variant returns the materialized file inside dir, if present.
func (w *Workspace) Variant(dir string, file pathutil.PathKey) (string, bool) {
	target := filepath.Join(dir, file.Base())
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return "", false
	}
	return target, true
}

// Clear removes every variant of every file.
func (w *Workspace) Clear() error {
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("clearing scratch workspace: %w", err)
	}
	return nil
}
