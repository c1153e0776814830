// Package codemetrics computes class-level code metrics with the CK tool.
package codemetrics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/toolexec"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const (
	toolCK = "ck"

	// classReport is the per-class CSV CK writes into its output directory.
	classReport = "class.csv"
)

// Source computes a metrics snapshot for one file of a source tree.
type Source interface {
	GetMetrics(ctx context.Context, file pathutil.PathKey, sourceRoot string) (*models.MetricsSnapshot, error)
}

// Store runs CK against a source tree and extracts the row for one file.
// It keeps no state between calls; caching belongs to the caller.
type Store struct {
	exec    toolexec.Executor
	logger  logger.Logger
	java    string
	jar     string
	workDir string
}

// NewStore creates a CK-backed store. Temporary CK output goes under workDir.
func NewStore(java, jar, workDir string, exec toolexec.Executor) *Store {
	return NewStoreWithLogger(java, jar, workDir, exec, logger.GetGlobalLogger())
}

// NewStoreWithLogger creates a store with a custom logger.
func NewStoreWithLogger(java, jar, workDir string, exec toolexec.Executor, log logger.Logger) *Store {
	return &Store{java: java, jar: jar, workDir: workDir, exec: exec, logger: log}
}

// GetMetrics runs CK over sourceRoot and returns the snapshot for file. A
// file CK did not report yields an empty snapshot, not an error; only tool
// failures are returned.
func (s *Store) GetMetrics(ctx context.Context, file pathutil.PathKey, sourceRoot string) (*models.MetricsSnapshot, error) {
	empty := &models.MetricsSnapshot{File: file, Values: map[string]float64{}}

	if err := os.MkdirAll(s.workDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating metrics work dir: %w", err)
	}
	outDir, err := os.MkdirTemp(s.workDir, "ck-")
	if err != nil {
		return nil, fmt.Errorf("creating metrics output dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving source root: %w", err)
	}

	// CK prefixes report names with the output argument, so a trailing
	// separator puts class.csv inside outDir.
	cmd := toolexec.Command{
		Binary: s.java,
		Args:   []string{"-jar", s.jar, absRoot, "false", "0", "false", outDir + string(filepath.Separator)},
		Dir:    outDir,
	}
	if _, err := s.exec.Run(ctx, toolCK, cmd); err != nil {
		return nil, fmt.Errorf("running ck: %w", err)
	}

	f, err := os.Open(filepath.Join(outDir, classReport)) //nolint:gosec // inside our temp dir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("CK produced no class report", "source_root", sourceRoot)
			return empty, nil
		}
		return nil, fmt.Errorf("opening ck report: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := ReadClassReport(f)
	if err != nil {
		s.logger.Warn("Unreadable CK report", "error", err)
		return empty, nil
	}

	snapshot, ok := SelectClass(rows, file, absRoot)
	if !ok {
		s.logger.Debug("No CK row for file", "file", file, "rows", len(rows))
		return empty, nil
	}
	return snapshot, nil
}

// Row is one line of the CK class report.
type Row struct {
	Values map[string]float64
	File   string
	Class  string
	Type   string
}

// ReadClassReport parses a CK class.csv stream.
func ReadClassReport(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}

		row := Row{Values: map[string]float64{}}
		for i, col := range header {
			if i >= len(record) {
				break
			}
			value := strings.TrimSpace(record[i])
			switch col {
			case "file":
				row.File = value
			case "class":
				row.Class = value
			case "type":
				row.Type = value
			default:
				if v, err := strconv.ParseFloat(value, 64); err == nil {
					row.Values[col] = v
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SelectClass picks the row describing file. Rows are matched on their
// path relative to root first; the path suffix and then the base name are
// fallbacks for reports whose paths do not sit under root. Only top-level
// classes count: names containing '$' are inner or anonymous. A class named
// after the file wins over other classes declared in it.
func SelectClass(rows []Row, file pathutil.PathKey, root string) (*models.MetricsSnapshot, bool) {
	fold := cases.Fold()
	key := fold.String(file.String())
	base := fold.String(file.Base())

	matchers := []func(reported string) bool{
		func(reported string) bool {
			return fold.String(pathutil.NewPathKey(reported, root).String()) == key
		},
		func(reported string) bool {
			return strings.HasSuffix(fold.String(slashed(reported)), "/"+key)
		},
		func(reported string) bool {
			return fold.String(path.Base(slashed(reported))) == base
		},
	}
	for _, match := range matchers {
		if row := pickClass(rows, file, match); row != nil {
			return row.snapshot(file), true
		}
	}
	return nil, false
}

func pickClass(rows []Row, file pathutil.PathKey, match func(string) bool) *Row {
	fold := cases.Fold()
	stem := fold.String(file.Stem())

	var fallback *Row
	for i := range rows {
		row := &rows[i]
		if fold.String(row.Type) != "class" || strings.Contains(row.Class, "$") {
			continue
		}
		if !match(row.File) {
			continue
		}
		if fold.String(simpleName(row.Class)) == stem {
			return row
		}
		if fallback == nil {
			fallback = row
		}
	}
	return fallback
}

func slashed(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func (r *Row) snapshot(file pathutil.PathKey) *models.MetricsSnapshot {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return &models.MetricsSnapshot{File: file, Class: r.Class, Values: values}
}

// simpleName strips the package from a qualified class name.
func simpleName(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 {
		return class[i+1:]
	}
	return class
}
