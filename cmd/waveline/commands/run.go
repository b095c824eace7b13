package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/gate"
	"github.com/waveline-ai/waveline/internal/hook"
	"github.com/waveline-ai/waveline/internal/logging"
	"github.com/waveline-ai/waveline/internal/session"
	"github.com/waveline-ai/waveline/internal/storage"
	"github.com/waveline-ai/waveline/internal/wave"
	"github.com/waveline-ai/waveline/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <playbook.yaml>",
	Short: "Execute a playbook of tool waves",
	Long: `Execute a playbook: waves run one after another, tasks within a wave
run concurrently, and validation gates run between waves. A failing
required gate aborts the remaining waves.

Examples:
  waveline run playbooks/nightly.yaml
  waveline run deploy.yaml --log-level DEBUG --print-logs`,
	Args: cobra.ExactArgs(1),
	RunE: runPlaybook,
}

func runPlaybook(cmd *cobra.Command, args []string) error {
	cfg, workDir, err := loadConfig()
	if err != nil {
		return err
	}

	pb, err := wave.Load(args[0])
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := registry.ConnectAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("some mcp servers failed to connect")
	}
	defer registry.DisconnectAll()

	sessions := session.NewService(cfg.DataDir)
	writer, err := sessions.Create(ctx, workDir)
	if err != nil {
		return err
	}

	opts := wave.Options{
		Hooks:   hook.NewEngine(cfg.Hooks),
		Gates:   gate.NewRunner(cfg.Gates),
		Store:   storage.New(cfg.DataDir),
		Session: writer,
	}
	if cfg.Waves != nil {
		opts.MaxConcurrent = cfg.Waves.MaxConcurrent
		if cfg.Waves.TaskTimeout > 0 {
			opts.TaskTimeout = time.Duration(cfg.Waves.TaskTimeout) * time.Second
		}
	}

	record, err := wave.NewRunner(registry, opts).Run(ctx, pb)
	if err != nil {
		return err
	}

	printRunRecord(record)

	if record.Status != wave.StatusCompleted {
		return fmt.Errorf("run %s %s", record.ID, record.Status)
	}
	return nil
}

func printRunRecord(record *wave.RunRecord) {
	fmt.Printf("Run %s (%s): %s in %dms\n\n", record.ID, record.Playbook, record.Status, record.DurationMS)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WAVE\tTASK\tSTATUS\tDURATION\tERROR\t")
	var gates []types.GateResult
	for _, wr := range record.Waves {
		for _, task := range wr.Tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\t\n",
				wr.Name, task.TaskID, task.Status, task.DurationMS, truncate(task.Error, 60))
		}
		for _, g := range wr.Gates {
			status := "passed"
			if !g.Passed {
				status = "failed"
			}
			fmt.Fprintf(w, "%s\tgate:%s\t%s\t%dms\t%s\t\n",
				wr.Name, g.Gate, status, g.DurationMS, truncate(g.Error, 60))
			gates = append(gates, g)
		}
	}
	w.Flush()

	if len(gates) > 0 {
		sum := gate.Summarize(gates)
		fmt.Printf("\nGates: %d/%d passed (%.0f%%)\n", sum.Passed, sum.Total, sum.SuccessRate*100)
	}
}
