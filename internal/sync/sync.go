// Package sync keeps a dotfiles checkout in step with its GitHub
// remote, shelling out to git and the gh CLI. Pull refuses to rebase
// over uncommitted local edits to files the remote also changed; the
// overlap comes back as a per-file diff report instead of a mangled
// working tree.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/pkg/types"
)

const defaultBranch = "main"

// Service syncs the configured dotfiles repository.
type Service struct {
	repo    string
	dir     string
	branch  string
	include []string
	exclude []string
}

// NewService builds a sync service from config. The checkout lives at
// sync.dir, defaulting to <dataDir>/sync.
func NewService(cfg *types.SyncConfig, dataDir string) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sync is not configured")
	}

	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(dataDir, "sync")
	}
	branch := cfg.Branch
	if branch == "" {
		branch = defaultBranch
	}

	return &Service{
		repo:    cfg.Repo,
		dir:     dir,
		branch:  branch,
		include: cfg.Include,
		exclude: cfg.Exclude,
	}, nil
}

// Dir returns the checkout directory.
func (s *Service) Dir() string {
	return s.dir
}

// Status is the working tree state of the checkout.
type Status struct {
	Dir       string   `json:"dir"`
	Branch    string   `json:"branch"`
	Commit    string   `json:"commit,omitempty"`
	Dirty     bool     `json:"dirty"`
	Modified  []string `json:"modified,omitempty"`
	Untracked []string `json:"untracked,omitempty"`
}

// Status reports the checkout's branch, head commit and dirty files.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	branch, err := s.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}

	st := &Status{Dir: s.dir, Branch: branch}
	if commit, err := s.git(ctx, "rev-parse", "--short", "HEAD"); err == nil {
		st.Commit = commit
	}

	modified, untracked, err := s.changes(ctx)
	if err != nil {
		return nil, err
	}
	st.Modified = modified
	st.Untracked = untracked
	st.Dirty = len(modified)+len(untracked) > 0
	return st, nil
}

// PullResult is the outcome of a pull.
type PullResult struct {
	Updated   bool       `json:"updated"`
	Commit    string     `json:"commit,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Pull fetches the remote branch and rebases onto it, stashing
// unrelated local edits around the rebase. When a locally edited file
// was also changed on the remote, Pull stops before touching the tree
// and reports the overlap instead.
func (s *Service) Pull(ctx context.Context) (*PullResult, error) {
	if _, err := s.git(ctx, "fetch", "origin", s.branch); err != nil {
		publish("pull", 1)
		return nil, err
	}

	remote := "origin/" + s.branch
	incoming, err := s.git(ctx, "diff", "--name-only", "HEAD", remote)
	if err != nil {
		return nil, err
	}
	incomingSet := make(map[string]bool)
	for _, path := range splitLines(incoming) {
		incomingSet[path] = true
	}

	modified, untracked, err := s.changes(ctx)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, path := range append(modified, untracked...) {
		if incomingSet[path] {
			conflicts = append(conflicts, s.conflict(ctx, path, remote))
		}
	}
	if len(conflicts) > 0 {
		log.Warn().
			Str("branch", s.branch).
			Int("files", len(conflicts)).
			Msg("pull blocked by overlapping local edits")
		publish("pull", 1)
		return &PullResult{Conflicts: conflicts}, nil
	}

	before, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	if _, err := s.git(ctx, "rebase", "--autostash", remote); err != nil {
		s.git(ctx, "rebase", "--abort")
		publish("pull", 1)
		return nil, err
	}
	after, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	res := &PullResult{Updated: before != after}
	if commit, err := s.git(ctx, "rev-parse", "--short", "HEAD"); err == nil {
		res.Commit = commit
	}

	log.Info().
		Str("branch", s.branch).
		Str("commit", res.Commit).
		Bool("updated", res.Updated).
		Msg("sync pull complete")
	publish("pull", 0)
	return res, nil
}

// PushResult is the outcome of a push.
type PushResult struct {
	Committed bool   `json:"committed"`
	Commit    string `json:"commit,omitempty"`
	Files     int    `json:"files"`
	Pushed    bool   `json:"pushed"`
}

// Push stages the dirty files selected by the include/exclude globs,
// commits when anything was staged, and pushes the branch.
func (s *Service) Push(ctx context.Context, message string) (*PushResult, error) {
	modified, untracked, err := s.changes(ctx)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, path := range append(modified, untracked...) {
		if s.selected(path) {
			selected = append(selected, path)
		}
	}

	res := &PushResult{Files: len(selected)}
	if len(selected) > 0 {
		if _, err := s.git(ctx, append([]string{"add", "--"}, selected...)...); err != nil {
			return nil, err
		}
		if message == "" {
			message = "waveline sync " + time.Now().UTC().Format("2006-01-02 15:04:05")
		}
		if _, err := s.git(ctx, "commit", "-m", message); err != nil {
			return nil, err
		}
		res.Committed = true
	}

	if commit, err := s.git(ctx, "rev-parse", "--short", "HEAD"); err == nil {
		res.Commit = commit
	}

	if _, err := s.git(ctx, "push", "-u", "origin", s.branch); err != nil {
		publish("push", 1)
		return nil, err
	}
	res.Pushed = true

	log.Info().
		Str("branch", s.branch).
		Str("commit", res.Commit).
		Int("files", res.Files).
		Msg("sync push complete")
	publish("push", 0)
	return res, nil
}

// EnsureRepo clones the configured repository into the checkout
// directory when it is missing. Requires an authenticated gh CLI.
func (s *Service) EnsureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.dir, ".git")); err == nil {
		return nil
	}
	if s.repo == "" {
		return fmt.Errorf("sync.repo is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.dir), 0755); err != nil {
		return fmt.Errorf("failed to create sync directory: %w", err)
	}

	log.Info().Str("repo", s.repo).Str("dir", s.dir).Msg("cloning sync repository")

	cmd := exec.CommandContext(ctx, "gh", "repo", "clone", s.repo, s.dir, "--", "--branch", s.branch)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		publish("clone", 1)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("gh repo clone: %s", msg)
	}
	publish("clone", 0)
	return nil
}

// changes parses `git status --porcelain` into modified and untracked
// paths. Renames report the new name.
func (s *Service) changes(ctx context.Context) (modified, untracked []string, err error) {
	out, err := s.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, nil, err
	}
	for _, line := range splitLines(out) {
		if len(line) < 4 {
			continue
		}
		code, path := line[:2], line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		if code == "??" {
			untracked = append(untracked, path)
		} else {
			modified = append(modified, path)
		}
	}
	return modified, untracked, nil
}

// selected applies the include/exclude globs to a repo-relative path.
// An empty include list selects everything.
func (s *Service) selected(path string) bool {
	ok := len(s.include) == 0
	for _, pattern := range s.include {
		if match, _ := doublestar.Match(pattern, path); match {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	for _, pattern := range s.exclude {
		if match, _ := doublestar.Match(pattern, path); match {
			return false
		}
	}
	return true
}

// git runs one git command in the checkout and returns trimmed stdout.
// Failures surface the command's stderr.
func (s *Service) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func publish(op string, failed int) {
	event.Publish(event.Event{Type: event.SyncCompleted, Data: event.SyncCompletedData{
		Op:     op,
		Repos:  1,
		Failed: failed,
	}})
}
