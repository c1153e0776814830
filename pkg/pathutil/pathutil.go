// Package pathutil provides safe path handling and the canonical file key
// used to compare source paths reported by different tools.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a path tries to escape its base directory.
var ErrTraversal = errors.New("path contains directory traversal")

// PathKey is a repository-relative, slash-separated, cleaned file path.
// All file comparisons between findings, caches and requests go through it.
type PathKey string

// NewPathKey canonicalizes p. Absolute paths under root are made relative to
// root; backslashes become slashes; leading "./" is dropped.
func NewPathKey(p, root string) PathKey {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, `\`, "/")

	if root != "" && filepath.IsAbs(filepath.FromSlash(p)) {
		absRoot, err := filepath.Abs(root)
		if err == nil {
			if rel, relErr := filepath.Rel(absRoot, filepath.FromSlash(p)); relErr == nil && !strings.HasPrefix(rel, "..") {
				p = filepath.ToSlash(rel)
			}
		}
	}

	cleaned := path.Clean(p)
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." {
		return ""
	}
	return PathKey(cleaned)
}

// String returns the key as a plain string.
func (k PathKey) String() string { return string(k) }

// Base returns the last element of the key.
func (k PathKey) Base() string { return path.Base(string(k)) }

// Stem returns the base name without extension.
func (k PathKey) Stem() string {
	base := k.Base()
	return strings.TrimSuffix(base, path.Ext(base))
}

// IsZero reports whether the key is empty.
func (k PathKey) IsZero() bool { return k == "" }

// Abs joins the key onto root using OS separators.
func (k PathKey) Abs(root string) string {
	return filepath.Join(root, filepath.FromSlash(string(k)))
}

// FirstExisting returns the first candidate (relative to root) that exists on
// disk as a regular file.
func FirstExisting(root string, candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		full := c
		if !filepath.IsAbs(c) {
			full = filepath.Join(root, filepath.FromSlash(c))
		}
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// ValidateConfigPath validates a configuration file path.
// Config files are expected to be YAML files.
func ValidateConfigPath(p string) (string, error) {
	if hasTraversal(p) {
		return "", fmt.Errorf("%w: %s", ErrTraversal, p)
	}

	absPath, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("config file must have .yaml or .yml extension, got %s", ext)
	}

	return absPath, nil
}

// JoinAndValidate joins path elements onto baseDir and ensures the result
// stays inside baseDir.
func JoinAndValidate(baseDir string, elems ...string) (string, error) {
	for _, elem := range elems {
		if hasTraversal(elem) {
			return "", fmt.Errorf("%w: %s", ErrTraversal, elem)
		}
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("getting absolute base directory: %w", err)
	}

	absJoined, err := filepath.Abs(filepath.Join(append([]string{baseDir}, elems...)...))
	if err != nil {
		return "", fmt.Errorf("getting absolute joined path: %w", err)
	}

	if !within(absJoined, absBase) {
		return "", fmt.Errorf("joined path %s is not within base directory %s", absJoined, baseDir)
	}

	return absJoined, nil
}

// IsWithinDirectory checks if p is dir or lies beneath it.
func IsWithinDirectory(p, dir string) (bool, error) {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}

	return within(absPath, absDir), nil
}

func within(absPath, absDir string) bool {
	if absPath == absDir {
		return true
	}
	prefix := absDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(absPath, prefix)
}

func hasTraversal(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
