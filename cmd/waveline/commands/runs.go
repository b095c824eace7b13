package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/internal/wave"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect persisted playbook runs",
	Long: `Inspect the run records written by 'waveline run'. Records are kept
under runs/ in the data directory; ids sort chronologically.

Examples:
  waveline runs list
  waveline runs show 01J8ZK3V9Q4W6XB2M5N7P0R9ST`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store := storage.New(cfg.DataDir)
	ids, err := store.List(ctx, []string{"runs"})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAYBOOK\tSTATUS\tSTARTED\tDURATION\t")
	for _, id := range ids {
		var record wave.RunRecord
		if err := store.Get(ctx, []string{"runs", id}, &record); err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t\n",
			record.ID, record.Playbook, record.Status, record.StartedAt, record.DurationMS)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var record wave.RunRecord
	err = storage.New(cfg.DataDir).Get(context.Background(), []string{"runs", args[0]}, &record)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unknown run %q", args[0])
		}
		return err
	}

	printRunRecord(&record)
	return nil
}
