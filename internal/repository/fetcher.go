// Package repository fetches the Java working copy a session operates on,
// either by cloning a git remote or by copying a local directory, and
// commits applied fixes back to it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// ErrInvalidSource is returned for locations that name nothing fetchable.
var ErrInvalidSource = errors.New("invalid repository source")

var githubBlob = regexp.MustCompile(`^(https?://github\.com/[^/]+/[^/]+?)(?:\.git)?/blob/([^/]+)/(.+)$`)

// Source names a repository to fetch.
type Source struct {
	// Location is a git URL, a GitHub file URL or a local directory.
	Location string
	Branch   string
}

// Fetched describes a freshly fetched working copy.
type Fetched struct {
	Dir  string
	Head string
	// File is set when the location pointed at a single file.
	File   pathutil.PathKey
	Cloned bool
}

// settings are shared by Fetcher and Committer.
type settings struct {
	logger      logger.Logger
	token       string
	remote      string
	authorName  string
	authorEmail string
	depth       int
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:      logger.GetGlobalLogger(),
		remote:      git.DefaultRemoteName,
		authorName:  "fixloop",
		authorEmail: "fixloop@localhost",
		depth:       1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// auth returns token credentials for HTTPS remotes.
func (s settings) auth(url string) transport.AuthMethod {
	if s.token == "" || !strings.HasPrefix(url, "http") {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: s.token,
	}
}

// Option configures a Fetcher or Committer.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithToken authenticates HTTPS clones and pushes with a personal access token.
func WithToken(token string) Option {
	return func(s *settings) {
		s.token = token
	}
}

// WithDepth limits remote clones to depth commits. Zero fetches full history.
func WithDepth(depth int) Option {
	return func(s *settings) {
		s.depth = depth
	}
}

// WithRemote names the remote commits are pushed to.
func WithRemote(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.remote = name
		}
	}
}

// WithAuthor sets the identity commits are made as.
func WithAuthor(name, email string) Option {
	return func(s *settings) {
		s.authorName, s.authorEmail = name, email
	}
}

// Fetcher replaces the contents of one target directory with a repository.
type Fetcher struct {
	settings
	target string
}

// NewFetcher creates a fetcher writing into target.
func NewFetcher(target string, opts ...Option) *Fetcher {
	return &Fetcher{settings: newSettings(opts), target: target}
}

// Target returns the directory the working copy is written to.
func (f *Fetcher) Target() string {
	return f.target
}

// Fetch discards the current working copy and replaces it with src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*Fetched, error) {
	location := strings.TrimSpace(src.Location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidSource)
	}

	remote, branch, file := ParseLocation(location)
	if src.Branch != "" {
		branch = src.Branch
	}

	target, err := filepath.Abs(f.target)
	if err != nil {
		return nil, fmt.Errorf("invalid target directory: %w", err)
	}

	if isLocalPath(remote) {
		local, err := filepath.Abs(remote)
		if err != nil {
			return nil, fmt.Errorf("invalid local path: %w", err)
		}
		if info, err := os.Stat(local); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, remote)
		}
		if local == target {
			f.logger.Info("Using working copy in place", "path", target)
			return &Fetched{Dir: target, Head: headOf(target), File: file}, nil
		}
		if err := f.clear(target); err != nil {
			return nil, err
		}
		if _, err := git.PlainOpen(local); err == nil {
			// local clones do not support shallow fetches
			return f.clone(ctx, target, local, branch, file, 0, nil)
		}
		return f.copyDir(target, local, file)
	}

	if err := f.clear(target); err != nil {
		return nil, err
	}
	return f.clone(ctx, target, remote, branch, file, f.depth, f.auth(remote))
}

func (f *Fetcher) clone(ctx context.Context, target, url, branch string, file pathutil.PathKey,
	depth int, auth transport.AuthMethod) (*Fetched, error) {
	opts := &git.CloneOptions{
		URL:   url,
		Auth:  auth,
		Depth: depth,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	f.logger.Info("Cloning repository", "url", url, "branch", branch, "target", target)
	repo, err := git.PlainCloneContext(ctx, target, false, opts)
	if err != nil {
		if removeErr := os.RemoveAll(target); removeErr != nil {
			f.logger.Error("Failed to clean up after clone failure", "path", target, "error", removeErr)
		}
		if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
			return nil, fmt.Errorf("repository requires valid credentials: %w", err)
		}
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	fetched := &Fetched{Dir: target, File: file, Cloned: true}
	if ref, err := repo.Head(); err == nil {
		fetched.Head = ref.Hash().String()
	}
	return fetched, nil
}

func (f *Fetcher) copyDir(target, local string, file pathutil.PathKey) (*Fetched, error) {
	f.logger.Info("Copying local directory", "path", local, "target", target)
	if err := os.CopyFS(target, os.DirFS(local)); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", local, err)
	}
	return &Fetched{Dir: target, File: file}, nil
}

func (f *Fetcher) clear(target string) error {
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to clear previous working copy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	return nil
}

// ParseLocation splits a GitHub file URL into the repository URL, branch and
// file. Any other location is returned unchanged as the remote.
func ParseLocation(location string) (remote, branch string, file pathutil.PathKey) {
	if m := githubBlob.FindStringSubmatch(location); m != nil {
		return m[1], m[2], pathutil.PathKey(m[3])
	}
	return location, "", ""
}

// ListJavaFiles returns the repo-relative Java sources under root, sorted.
func ListJavaFiles(root string) ([]pathutil.PathKey, error) {
	var files []pathutil.PathKey
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".java") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, pathutil.NewPathKey(rel, ""))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing java files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	return files, nil
}

func headOf(dir string) string {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

func isLocalPath(p string) bool {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") ||
		strings.HasPrefix(p, "git@") || strings.HasPrefix(p, "ssh://") || strings.HasPrefix(p, "git://") {
		return false
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		return true
	}
	_, err := os.Stat(p)
	return err == nil
}
