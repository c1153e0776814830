package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

const toolCompiler = "compiler"

// Compiler turns a source file into classes under outputDir. A nil error
// means the output directory holds at least one class file.
type Compiler interface {
	Compile(ctx context.Context, file, outputDir string) error
}

// ProjectCompiler compiles with whatever build system the working copy uses.
type ProjectCompiler struct {
	exec       toolexec.Executor
	logger     logger.Logger
	javac      string
	repoRoot   string
	sourceRoot string
}

// NewProjectCompiler creates a compiler for the working copy at repoRoot.
func NewProjectCompiler(repoRoot, sourceRoot, javac string, exec toolexec.Executor) *ProjectCompiler {
	return NewProjectCompilerWithLogger(repoRoot, sourceRoot, javac, exec, logger.GetGlobalLogger())
}

// NewProjectCompilerWithLogger creates a compiler with a custom logger.
func NewProjectCompilerWithLogger(repoRoot, sourceRoot, javac string, exec toolexec.Executor, log logger.Logger) *ProjectCompiler {
	if javac == "" {
		javac = "javac"
	}
	return &ProjectCompiler{
		repoRoot:   repoRoot,
		sourceRoot: sourceRoot,
		javac:      javac,
		exec:       exec,
		logger:     log,
	}
}

// Compile implements Compiler.
func (c *ProjectCompiler) Compile(ctx context.Context, file, outputDir string) error {
	if !fileExists(file) {
		return models.NewCompileError(file, "source file does not exist")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return models.NewToolError(toolCompiler, models.ErrorTypeExecution, fmt.Errorf("creating output directory: %w", err))
	}

	project := Detect(c.repoRoot, file)
	c.logger.Info("Compiling", "file", file, "build_system", project.System, "project_dir", project.Dir)

	var err error
	switch project.System {
	case SystemMaven:
		err = c.compileMaven(ctx, project, file, outputDir)
	case SystemGradle:
		err = c.compileGradle(ctx, project, file, outputDir)
	default:
		err = c.compileJavac(ctx, file, outputDir)
	}
	if err != nil {
		return err
	}

	if !hasClassFiles(outputDir) {
		return models.NewCompileError(file, fmt.Sprintf("no class files were produced in %s", outputDir))
	}
	return nil
}

func (c *ProjectCompiler) compileMaven(ctx context.Context, project Project, file, outputDir string) error {
	cmd := toolexec.Command{
		Binary: wrapperOr(project.Dir, "mvnw", "mvn"),
		Dir:    project.Dir,
		Args:   []string{"clean", "compile", "-DskipTests"},
	}
	if err := c.run(ctx, file, cmd); err != nil {
		return err
	}

	var classDirs []string
	_ = filepath.WalkDir(project.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == "classes" && filepath.Base(filepath.Dir(p)) == "target" {
			classDirs = append(classDirs, p)
			return fs.SkipDir
		}
		return nil
	})
	if len(classDirs) == 0 {
		return models.NewCompileError(file, "no target/classes directories found after maven build")
	}
	return c.collect(outputDir, classDirs...)
}

func (c *ProjectCompiler) compileGradle(ctx context.Context, project Project, file, outputDir string) error {
	cmd := toolexec.Command{
		Binary: wrapperOr(project.Dir, "gradlew", "gradle"),
		Dir:    project.Dir,
		Args:   []string{"compileJava", "-x", "test"},
	}
	if err := c.run(ctx, file, cmd); err != nil {
		return err
	}

	classDir := filepath.Join(project.Dir, "build", "classes", "java", "main")
	if _, err := os.Stat(classDir); err != nil {
		return models.NewCompileError(file, fmt.Sprintf("gradle output not found at %s", classDir))
	}
	return c.collect(outputDir, classDir)
}

func (c *ProjectCompiler) compileJavac(ctx context.Context, file, outputDir string) error {
	sourcePath := filepath.Join(c.repoRoot, c.sourceRoot)
	if info, err := os.Stat(sourcePath); err != nil || !info.IsDir() {
		sourcePath = filepath.Dir(file)
	}

	cmd := toolexec.Command{
		Binary: c.javac,
		Args: []string{
			"-d", outputDir,
			"-cp", strings.Join([]string{sourcePath, outputDir}, string(os.PathListSeparator)),
			"-sourcepath", sourcePath,
			"-encoding", "UTF-8",
			"-Xlint:none",
			file,
		},
	}
	return c.run(ctx, file, cmd)
}

// run executes a build command. Execution failures become compile errors so
// callers can tell "the code does not build" from "the compiler is missing".
func (c *ProjectCompiler) run(ctx context.Context, file string, cmd toolexec.Command) error {
	output, err := c.exec.Run(ctx, toolCompiler, cmd)
	if err == nil {
		return nil
	}
	switch models.ClassifyError(err) {
	case models.ErrorTypeUnavailable, models.ErrorTypeTimeout:
		return err
	}
	c.logger.Warn("Compilation failed", "file", file, "command", cmd.String())
	return models.NewCompileError(file, toolexec.Truncate(output))
}

// collect replaces the class files in outputDir with those from classDirs.
func (c *ProjectCompiler) collect(outputDir string, classDirs ...string) error {
	if err := Clean(outputDir); err != nil {
		return err
	}
	for _, dir := range classDirs {
		c.logger.Debug("Copying compiled classes", "from", dir, "to", outputDir)
		if err := copyClasses(dir, outputDir); err != nil {
			return models.NewToolError(toolCompiler, models.ErrorTypeExecution, err)
		}
	}
	return nil
}

// Clean removes compiled classes from dir, keeping the directory itself.
func Clean(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".class") {
			return os.Remove(p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cleaning %s: %w", dir, err)
	}
	return nil
}

func copyClasses(from, to string) error {
	return filepath.WalkDir(from, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".class") {
			return nil
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		return copyFile(p, filepath.Join(to, rel))
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	in, err := os.Open(src) //nolint:gosec // walking our own build output
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // destination under the bin directory
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// wrapperOr prefers a project-local build wrapper over the global binary.
func wrapperOr(dir, wrapper, global string) string {
	p := filepath.Join(dir, wrapper)
	if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return p
	}
	return global
}

func hasClassFiles(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".class") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
