package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/sync"
)

var syncMessage string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Keep the dotfiles checkout in step with GitHub",
	Long: `Manage the dotfiles checkout configured under "sync". The checkout
is cloned on first use and lives under the data directory unless
sync.dir points elsewhere.

Examples:
  waveline sync status
  waveline sync pull
  waveline sync push -m "tune shell aliases"`,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkout's branch and dirty files",
	RunE:  runSyncStatus,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Rebase the checkout onto the remote branch",
	RunE:  runSyncPull,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit selected dirty files and push",
	RunE:  runSyncPush,
}

func init() {
	syncPushCmd.Flags().StringVarP(&syncMessage, "message", "m", "", "Commit message (defaults to a timestamped one)")

	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncPushCmd)
}

// syncService builds the sync service from config and makes sure the
// checkout exists, cloning it when missing.
func syncService(ctx context.Context) (*sync.Service, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	svc, err := sync.NewService(cfg.Sync, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := svc.EnsureRepo(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := syncService(ctx)
	if err != nil {
		return err
	}
	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Checkout %s (branch %s", st.Dir, st.Branch)
	if st.Commit != "" {
		fmt.Printf(" @ %s", st.Commit)
	}
	fmt.Println(")")

	if !st.Dirty {
		fmt.Println("Clean")
		return nil
	}
	for _, path := range st.Modified {
		fmt.Printf("  modified:  %s\n", path)
	}
	for _, path := range st.Untracked {
		fmt.Printf("  untracked: %s\n", path)
	}
	return nil
}

func runSyncPull(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := syncService(ctx)
	if err != nil {
		return err
	}
	res, err := svc.Pull(ctx)
	if err != nil {
		return err
	}

	if len(res.Conflicts) > 0 {
		for _, c := range res.Conflicts {
			fmt.Printf("conflict: %s\n%s\n", c.Path, c.Diff)
		}
		return fmt.Errorf("pull blocked: %d file(s) changed both locally and on the remote", len(res.Conflicts))
	}
	if !res.Updated {
		fmt.Println("Already up to date")
		return nil
	}
	fmt.Printf("Updated to %s\n", res.Commit)
	return nil
}

func runSyncPush(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := syncService(ctx)
	if err != nil {
		return err
	}
	res, err := svc.Push(ctx, syncMessage)
	if err != nil {
		return err
	}

	if res.Committed {
		fmt.Printf("Committed %d file(s) as %s\n", res.Files, res.Commit)
	} else {
		fmt.Println("Nothing to commit")
	}
	fmt.Println("Pushed to origin")
	return nil
}
