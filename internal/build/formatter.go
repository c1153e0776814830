package build

import (
	"context"
	"fmt"

	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

const toolFormatter = "formatter"

// Formatter rewrites a source file in place.
type Formatter interface {
	Format(ctx context.Context, file string) error
}

// JarFormatter runs google-java-format through the JVM.
type JarFormatter struct {
	exec   toolexec.Executor
	logger logger.Logger
	java   string
	jar    string
}

// NewJarFormatter creates a formatter backed by jar.
func NewJarFormatter(java, jar string, exec toolexec.Executor) *JarFormatter {
	return NewJarFormatterWithLogger(java, jar, exec, logger.GetGlobalLogger())
}

// NewJarFormatterWithLogger creates a formatter with a custom logger.
func NewJarFormatterWithLogger(java, jar string, exec toolexec.Executor, log logger.Logger) *JarFormatter {
	return &JarFormatter{java: java, jar: jar, exec: exec, logger: log}
}

// Format implements Formatter.
func (f *JarFormatter) Format(ctx context.Context, file string) error {
	cmd := toolexec.Command{
		Binary: f.java,
		Args:   []string{"-jar", f.jar, "-i", file},
	}
	if _, err := f.exec.Run(ctx, toolFormatter, cmd); err != nil {
		return fmt.Errorf("formatting %s: %w", file, err)
	}
	f.logger.Debug("Formatted", "file", file)
	return nil
}

// NopFormatter leaves files untouched.
type NopFormatter struct{}

// Format implements Formatter.
func (NopFormatter) Format(context.Context, string) error { return nil }
