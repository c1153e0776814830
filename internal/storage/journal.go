// Package storage persists the session journal: one JSON line per fetch,
// applied fix and validation, grouped by session.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const journalFile = "journal.jsonl"

// maxLineSize bounds one journal record when reading.
const maxLineSize = 1 << 20

// EventKind names what a journal entry records.
type EventKind string

// Journal event kinds.
const (
	EventFetch    EventKind = "fetch"
	EventApply    EventKind = "apply"
	EventValidate EventKind = "validate"
	EventCommit   EventKind = "commit"
)

// Entry is one journal record.
type Entry struct {
	Time           time.Time                     `json:"time"`
	Fixed          *bool                         `json:"fixed,omitempty"`
	Deltas         map[string]models.MetricDelta `json:"deltas,omitempty"`
	ID             string                        `json:"id"`
	SessionID      string                        `json:"session_id"`
	Kind           EventKind                     `json:"kind"`
	File           pathutil.PathKey              `json:"file,omitempty"`
	Tool           models.Tool                   `json:"tool,omitempty"`
	BugType        string                        `json:"bug_type,omitempty"`
	Status         models.Status                 `json:"status"`
	Message        string                        `json:"message,omitempty"`
	Commit         string                        `json:"commit,omitempty"`
	Line           int                           `json:"line,omitempty"`
	SolutionID     int                           `json:"solution_id,omitempty"`
	RemainingCount int                           `json:"remaining_count,omitempty"`
}

// SessionInfo summarizes one session of the journal.
type SessionInfo struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ID          string    `json:"id"`
	Applies     int       `json:"applies"`
	Validations int       `json:"validations"`
	Fixed       int       `json:"fixed"`
}

// Journal appends entries to a JSON-lines file under a data directory.
type Journal struct {
	logger  logger.Logger
	now     func() time.Time
	dir     string
	session string
	mu      sync.Mutex
}

// NewJournal opens the journal in dir with a fresh session.
func NewJournal(dir string) (*Journal, error) {
	return NewJournalWithLogger(dir, logger.GetGlobalLogger())
}

// NewJournalWithLogger opens the journal with a custom logger.
func NewJournalWithLogger(dir string, log logger.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &Journal{
		dir:     dir,
		session: uuid.NewString(),
		logger:  log,
		now:     time.Now,
	}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	p, err := pathutil.JoinAndValidate(j.dir, journalFile)
	if err != nil {
		return ""
	}
	return p
}

// SessionID returns the current session.
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

// NewSession starts a new session and returns its ID.
func (j *Journal) NewSession() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.session = uuid.NewString()
	return j.session
}

// Resume continues the most recent session found in the journal, so that
// separate processes working on one checkout share a session until the next
// fetch. It keeps the fresh session when the journal is empty.
func (j *Journal) Resume() (string, error) {
	sessions, err := j.Sessions()
	if err != nil {
		return j.SessionID(), err
	}
	if len(sessions) == 0 {
		return j.SessionID(), nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.session = sessions[0].ID
	return j.session, nil
}

// Record stamps e with an ID, the current session and time, and appends it.
func (j *Journal) Record(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.ID = uuid.NewString()
	e.SessionID = j.session
	if e.Time.IsZero() {
		e.Time = j.now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("encoding journal entry: %w", err)
	}

	path := j.Path()
	if path == "" {
		return e, fmt.Errorf("invalid journal path under %s", j.dir)
	}
	if err := appendLine(path, line); err != nil {
		return e, fmt.Errorf("writing journal: %w", err)
	}
	j.logger.Debug("Journal entry recorded", "kind", e.Kind, "file", e.File, "session_id", e.SessionID)
	return e, nil
}

func appendLine(path string, line []byte) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // validated by caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = f.Write(append(line, '\n'))
	return err
}

// Entries returns journal entries in the order written. session filters to
// one session when non-empty; limit keeps only the newest entries when
// positive. Unreadable lines are skipped.
func (j *Journal) Entries(session string, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			j.logger.Debug("Failed to close journal", "error", cerr)
		}
	}()

	entries := []Entry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			j.logger.Warn("Skipping malformed journal line", "line", lineNo, "error", err)
			continue
		}
		if session != "" && e.SessionID != session {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Sessions summarizes every session in the journal, newest first.
func (j *Journal) Sessions() ([]SessionInfo, error) {
	entries, err := j.Entries("", 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*SessionInfo)
	for _, e := range entries {
		info, ok := byID[e.SessionID]
		if !ok {
			info = &SessionInfo{ID: e.SessionID, Start: e.Time}
			byID[e.SessionID] = info
		}
		if e.Time.Before(info.Start) {
			info.Start = e.Time
		}
		if e.Time.After(info.End) {
			info.End = e.Time
		}
		switch e.Kind {
		case EventApply:
			if e.Status != models.StatusFailed {
				info.Applies++
			}
		case EventValidate:
			info.Validations++
			if e.Fixed != nil && *e.Fixed {
				info.Fixed++
			}
		}
	}

	sessions := make([]SessionInfo, 0, len(byID))
	for _, info := range byID {
		sessions = append(sessions, *info)
	}
	sort.Slice(sessions, func(a, b int) bool {
		return sessions[a].Start.After(sessions[b].Start)
	})
	return sessions, nil
}
