package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveline-ai/waveline/internal/event"
	"github.com/waveline-ai/waveline/pkg/types"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
	return strings.TrimSpace(string(out))
}

func configureGitUser(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// newSyncPair builds a bare origin, a seed checkout that can push
// upstream changes, and a Service over its own clone.
func newSyncPair(t *testing.T, cfg types.SyncConfig) (*Service, string) {
	t.Helper()
	root := t.TempDir()

	origin := filepath.Join(root, "origin.git")
	require.NoError(t, os.Mkdir(origin, 0755))
	runGit(t, origin, "init", "--bare", "-b", "main")

	seed := filepath.Join(root, "seed")
	require.NoError(t, os.Mkdir(seed, 0755))
	runGit(t, seed, "init", "-b", "main")
	configureGitUser(t, seed)
	writeFile(t, seed, "README.md", "# dotfiles\n")
	runGit(t, seed, "add", ".")
	runGit(t, seed, "commit", "-m", "initial")
	runGit(t, seed, "remote", "add", "origin", origin)
	runGit(t, seed, "push", "-u", "origin", "main")

	local := filepath.Join(root, "local")
	runGit(t, root, "clone", origin, local)
	configureGitUser(t, local)

	cfg.Dir = local
	svc, err := NewService(&cfg, root)
	require.NoError(t, err)
	return svc, seed
}

func pushFromSeed(t *testing.T, seed, name, content, message string) {
	t.Helper()
	writeFile(t, seed, name, content)
	runGit(t, seed, "add", ".")
	runGit(t, seed, "commit", "-m", message)
	runGit(t, seed, "push", "origin", "main")
}

func TestNewService_NotConfigured(t *testing.T) {
	_, err := NewService(nil, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestNewService_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	svc, err := NewService(&types.SyncConfig{Repo: "me/dotfiles"}, dataDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dataDir, "sync"), svc.Dir())
	assert.Equal(t, "main", svc.branch)
}

func TestStatus_Clean(t *testing.T) {
	svc, _ := newSyncPair(t, types.SyncConfig{})

	st, err := svc.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "main", st.Branch)
	assert.NotEmpty(t, st.Commit)
	assert.False(t, st.Dirty)
	assert.Empty(t, st.Modified)
	assert.Empty(t, st.Untracked)
}

func TestStatus_DirtyTree(t *testing.T) {
	svc, _ := newSyncPair(t, types.SyncConfig{})
	writeFile(t, svc.Dir(), "README.md", "# changed\n")
	writeFile(t, svc.Dir(), "notes.txt", "new\n")

	st, err := svc.Status(context.Background())
	require.NoError(t, err)

	assert.True(t, st.Dirty)
	assert.Contains(t, st.Modified, "README.md")
	assert.Contains(t, st.Untracked, "notes.txt")
}

func TestPush(t *testing.T) {
	svc, seed := newSyncPair(t, types.SyncConfig{})
	writeFile(t, svc.Dir(), "README.md", "# updated\n")
	writeFile(t, svc.Dir(), "config/init.lua", "return {}\n")

	res, err := svc.Push(context.Background(), "update configs")
	require.NoError(t, err)

	assert.True(t, res.Committed)
	assert.True(t, res.Pushed)
	assert.Equal(t, 2, res.Files)
	assert.NotEmpty(t, res.Commit)

	// The seed checkout sees the pushed commit.
	runGit(t, seed, "pull", "origin", "main")
	data, err := os.ReadFile(filepath.Join(seed, "config/init.lua"))
	require.NoError(t, err)
	assert.Equal(t, "return {}\n", string(data))
}

func TestPush_IncludeExclude(t *testing.T) {
	svc, _ := newSyncPair(t, types.SyncConfig{
		Include: []string{"*.md", "config/**"},
		Exclude: []string{"**/secret*"},
	})
	writeFile(t, svc.Dir(), "a.md", "a\n")
	writeFile(t, svc.Dir(), "b.txt", "b\n")
	writeFile(t, svc.Dir(), "config/keys.lua", "k\n")
	writeFile(t, svc.Dir(), "config/secret.txt", "s\n")

	res, err := svc.Push(context.Background(), "selective")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.txt", "config/secret.txt"}, st.Untracked,
		"unselected files stay out of the commit")
}

func TestPush_NothingToCommit(t *testing.T) {
	svc, _ := newSyncPair(t, types.SyncConfig{})

	res, err := svc.Push(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, res.Committed)
	assert.Equal(t, 0, res.Files)
	assert.True(t, res.Pushed)
}

func TestPull_FastForward(t *testing.T) {
	svc, seed := newSyncPair(t, types.SyncConfig{})
	pushFromSeed(t, seed, "alias.sh", "alias ll='ls -la'\n", "add aliases")

	res, err := svc.Pull(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Empty(t, res.Conflicts)
	assert.FileExists(t, filepath.Join(svc.Dir(), "alias.sh"))

	res, err = svc.Pull(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Updated, "second pull has nothing to apply")
}

func TestPull_ConflictReport(t *testing.T) {
	svc, seed := newSyncPair(t, types.SyncConfig{})
	pushFromSeed(t, seed, "README.md", "# dotfiles (remote edition)\n", "remote edit")
	writeFile(t, svc.Dir(), "README.md", "# dotfiles (local edition)\n")

	res, err := svc.Pull(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Updated)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "README.md", res.Conflicts[0].Path)
	assert.Contains(t, res.Conflicts[0].Diff, "local edition")

	// The working tree is untouched.
	data, err := os.ReadFile(filepath.Join(svc.Dir(), "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# dotfiles (local edition)\n", string(data))
}

func TestPull_UnrelatedLocalEditsSurviveRebase(t *testing.T) {
	svc, seed := newSyncPair(t, types.SyncConfig{})

	// Track a second file so the local edit is to a tracked path.
	writeFile(t, svc.Dir(), "notes.txt", "original\n")
	runGit(t, svc.Dir(), "add", ".")
	runGit(t, svc.Dir(), "commit", "-m", "add notes")
	runGit(t, svc.Dir(), "push", "origin", "main")
	runGit(t, seed, "pull", "origin", "main")

	pushFromSeed(t, seed, "README.md", "# remote update\n", "remote edit")
	writeFile(t, svc.Dir(), "notes.txt", "local scribbles\n")

	res, err := svc.Pull(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Empty(t, res.Conflicts)

	readme, err := os.ReadFile(filepath.Join(svc.Dir(), "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# remote update\n", string(readme))

	notes, err := os.ReadFile(filepath.Join(svc.Dir(), "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local scribbles\n", string(notes), "autostash restores the local edit")
}

func TestEnsureRepo_ExistingCheckout(t *testing.T) {
	svc, _ := newSyncPair(t, types.SyncConfig{})
	assert.NoError(t, svc.EnsureRepo(context.Background()))
}

func TestEnsureRepo_NoRepoConfigured(t *testing.T) {
	svc, err := NewService(&types.SyncConfig{}, t.TempDir())
	require.NoError(t, err)

	err = svc.EnsureRepo(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.repo")
}

func TestSelected(t *testing.T) {
	svc := &Service{
		include: []string{"*.md", "config/**"},
		exclude: []string{"**/*.key"},
	}

	assert.True(t, svc.selected("README.md"))
	assert.True(t, svc.selected("config/nvim/init.lua"))
	assert.False(t, svc.selected("script.sh"))
	assert.False(t, svc.selected("config/ssh/id.key"))

	open := &Service{exclude: []string{".env"}}
	assert.True(t, open.selected("anything.txt"), "empty include selects everything")
	assert.False(t, open.selected(".env"))
}

func TestPush_PublishesEvent(t *testing.T) {
	completed := make(chan event.SyncCompletedData, 1)
	unsub := event.Subscribe(event.SyncCompleted, func(e event.Event) {
		select {
		case completed <- e.Data.(event.SyncCompletedData):
		default:
		}
	})
	t.Cleanup(unsub)

	svc, _ := newSyncPair(t, types.SyncConfig{})
	writeFile(t, svc.Dir(), "new.md", "x\n")

	_, err := svc.Push(context.Background(), "event check")
	require.NoError(t, err)

	select {
	case data := <-completed:
		assert.Equal(t, "push", data.Op)
		assert.Equal(t, 0, data.Failed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sync.completed event")
	}
}
