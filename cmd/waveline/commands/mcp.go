package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-ai/waveline/internal/hook"
	"github.com/waveline-ai/waveline/internal/logging"
)

var (
	mcpCallArgs    string
	mcpCallTimeout time.Duration
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Inspect and invoke MCP servers",
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers and their state",
	RunE:  runMCPList,
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the namespaced tool catalog across all servers",
	RunE:  runMCPTools,
}

var mcpCallCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool by its namespaced name",
	Long: `Invoke a tool by its namespaced name (server_tool, as listed by
'waveline mcp tools'). Hooks configured for preToolUse/postToolUse run
around the call.

Examples:
  waveline mcp call files_read_file --args '{"path": "notes.md"}'
  waveline mcp call echo_echo --args '{"message": "hi"}' --timeout 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runMCPCall,
}

func init() {
	mcpCallCmd.Flags().StringVar(&mcpCallArgs, "args", "{}", "Tool arguments as JSON")
	mcpCallCmd.Flags().DurationVar(&mcpCallTimeout, "timeout", 60*time.Second, "Call timeout")

	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpToolsCmd)
	mcpCmd.AddCommand(mcpCallCmd)
}

func runMCPList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	// Connect failures show up in the table; no need to abort.
	if err := registry.ConnectAll(ctx); err != nil {
		logging.Debug().Err(err).Msg("connect errors during listing")
	}
	defer registry.DisconnectAll()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tTOOLS\tERROR\t")
	for _, st := range registry.Status() {
		state := string(st.State)
		if st.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t\n", st.Name, state, st.ToolCount, truncate(st.Error, 60))
	}
	return w.Flush()
}

func runMCPTools(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := registry.ConnectAll(ctx); err != nil {
		logging.Debug().Err(err).Msg("connect errors during listing")
	}
	defer registry.DisconnectAll()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION\t")
	for _, tool := range registry.AllTools() {
		fmt.Fprintf(w, "%s\t%s\t\n", tool.Name, truncate(tool.Description, 72))
	}
	return w.Flush()
}

func runMCPCall(cmd *cobra.Command, args []string) error {
	toolName := args[0]

	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(mcpCallArgs), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), mcpCallTimeout)
	defer cancel()

	if err := registry.ConnectAll(ctx); err != nil {
		logging.Warn().Err(err).Msg("some mcp servers failed to connect")
	}
	defer registry.DisconnectAll()

	hooks := hook.NewEngine(cfg.Hooks)
	if res := hooks.Run(ctx, hook.EventPreToolUse, toolName, toolArgs); res.Decision == hook.Block {
		return fmt.Errorf("blocked by hook: %s", res.Reason)
	}

	raw, err := json.Marshal(toolArgs)
	if err != nil {
		return err
	}

	result, callErr := registry.CallTool(ctx, toolName, raw)
	hooks.Run(ctx, hook.EventPostToolUse, toolName, toolArgs)
	if callErr != nil {
		return callErr
	}

	if result.IsError {
		return fmt.Errorf("tool error: %s", result.Text())
	}
	fmt.Println(result.Text())
	return nil
}
