package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/session"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/pkg/types"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions and token usage",
	Long: `Inspect the session log: every serve and run records its tool calls
and model turns under the data directory, keyed by project.

Examples:
  waveline sessions list
  waveline sessions usage
  waveline sessions usage 4cd4dc02-283a-4531-9b77-76dbb1e71b33`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE:  runSessionsList,
}

var sessionsUsageCmd = &cobra.Command{
	Use:   "usage [session-id]",
	Short: "Show token usage for one session or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionsUsage,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsUsageCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessions, err := session.NewService(cfg.DataDir).List(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tENTRIES\tTOKENS\tUPDATED\t")
	for _, s := range sessions {
		updated := time.UnixMilli(s.Time.Updated).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t\n",
			s.ID, truncate(s.ProjectPath, 40), s.Entries,
			s.Usage.InputTokens+s.Usage.OutputTokens, updated)
	}
	return w.Flush()
}

func runSessionsUsage(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessions := session.NewService(cfg.DataDir)

	if len(args) == 1 {
		usage, err := sessions.Usage(ctx, args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("unknown session %q", args[0])
			}
			return err
		}
		printUsage(*usage)
		return nil
	}

	all, err := sessions.List(ctx)
	if err != nil {
		return err
	}
	var total types.TokenUsage
	for _, s := range all {
		total.Add(s.Usage)
	}
	fmt.Printf("Across %d session(s):\n", len(all))
	printUsage(total)
	return nil
}

func printUsage(u types.TokenUsage) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Input tokens\t%d\t\n", u.InputTokens)
	fmt.Fprintf(w, "Output tokens\t%d\t\n", u.OutputTokens)
	fmt.Fprintf(w, "Cache creation tokens\t%d\t\n", u.CacheCreationTokens)
	fmt.Fprintf(w, "Cache read tokens\t%d\t\n", u.CacheReadTokens)
	fmt.Fprintf(w, "Total\t%d\t\n", u.InputTokens+u.OutputTokens+u.CacheCreationTokens+u.CacheReadTokens)
	w.Flush()
}
