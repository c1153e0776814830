// Package build detects how a Java working copy is built and compiles it
// into the shared class output directory.
package build

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// System identifies a build tool.
type System string

// Supported build systems.
const (
	SystemMaven  System = "maven"
	SystemGradle System = "gradle"
	SystemJavac  System = "javac"
)

// maxParentLevels bounds the upward search for build files from a source file.
const maxParentLevels = 5

// Project is a detected build root.
type Project struct {
	Dir    string
	System System
}

// systemAt reports the build system whose build file lives directly in dir.
func systemAt(dir string) (System, bool) {
	if fileExists(filepath.Join(dir, "pom.xml")) {
		return SystemMaven, true
	}
	if fileExists(filepath.Join(dir, "build.gradle")) || fileExists(filepath.Join(dir, "build.gradle.kts")) {
		return SystemGradle, true
	}
	return "", false
}

// Detect finds the build root for file. The repository root wins, then the
// first build file found below it, then the nearest parent of file. Without
// any build file the file's own directory is compiled with javac.
func Detect(repoRoot, file string) Project {
	if repoRoot != "" {
		if sys, ok := systemAt(repoRoot); ok {
			return Project{Dir: repoRoot, System: sys}
		}
		if p, ok := findBelow(repoRoot); ok {
			return p
		}
	}

	dir := filepath.Dir(file)
	for range maxParentLevels {
		if sys, ok := systemAt(dir); ok {
			return Project{Dir: dir, System: sys}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return Project{Dir: filepath.Dir(file), System: SystemJavac}
}

func findBelow(root string) (Project, bool) {
	var found Project
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		// skips .git and other hidden trees
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if sys, ok := systemAt(p); ok {
			found = Project{Dir: p, System: sys}
			return fs.SkipAll
		}
		return nil
	})
	return found, found.System != ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
