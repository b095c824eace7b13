package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Conflict describes one file whose uncommitted local edits collide
// with changes on the remote.
type Conflict struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// conflict builds the diff report for one overlapping path. The remote
// side comes from the fetched branch; a file the remote deleted or
// never had diffs against empty content.
func (s *Service) conflict(ctx context.Context, path, remote string) Conflict {
	var local string
	if data, err := os.ReadFile(filepath.Join(s.dir, path)); err == nil {
		local = strings.TrimSpace(string(data))
	}

	theirs, err := s.git(ctx, "show", remote+":"+path)
	if err != nil {
		theirs = ""
	}

	return Conflict{Path: path, Diff: diffReport(theirs, local)}
}

// diffReport renders remote -> local changes; insertions are the local
// edits a rebase would clobber.
func diffReport(remote, local string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(remote, local, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
