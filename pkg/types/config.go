package types

// Config is the waveline configuration document as it appears on disk
// (JSONC). Three tiers merge into one of these: built-in defaults,
// ~/.waveline/config.json, then <project>/.waveline/config.json.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Logging
	LogLevel string `json:"logLevel,omitempty"` // "debug"|"info"|"warn"|"error"

	// Base directory for session transcripts and sync state.
	// Defaults to ~/.waveline.
	DataDir string `json:"dataDir,omitempty"`

	// MCP server declarations, keyed by server name.
	MCPServers map[string]MCPServerConfig `json:"mcpServers,omitempty"`

	// Lifecycle hooks, keyed by event ("preToolUse", "postToolUse").
	Hooks map[string][]HookRule `json:"hooks,omitempty"`

	// Validation gates, keyed by gate name.
	Gates map[string]GateConfig `json:"gates,omitempty"`

	// Wave orchestrator settings.
	Waves *WavesConfig `json:"waves,omitempty"`

	// Dotfiles sync settings.
	Sync *SyncConfig `json:"sync,omitempty"`

	// Status server settings.
	Server *ServerConfig `json:"server,omitempty"`
}

// MCPServerConfig declares one MCP server. Type selects the transport
// and is validated when the config is loaded.
type MCPServerConfig struct {
	Type    string            `json:"type"` // "stdio" | "sse" | "http"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL       string            `json:"url,omitempty"`     // sse stream / http endpoint
	PostURL   string            `json:"postUrl,omitempty"` // pins the sse outbound endpoint
	HealthURL string            `json:"healthUrl,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	// CredentialCommand runs at load time; its trimmed stdout replaces
	// ${credential} in this server's Headers and Env values.
	CredentialCommand string `json:"credentialCommand,omitempty"`

	Enabled *bool `json:"enabled,omitempty"`

	// Timeouts in seconds, restart budget for the health monitor.
	CallTimeout    int  `json:"callTimeout,omitempty"`
	ConnectTimeout int  `json:"connectTimeout,omitempty"`
	HealthInterval int  `json:"healthInterval,omitempty"`
	MaxRestarts    *int `json:"maxRestarts,omitempty"`
}

// HookRule binds a matcher pattern to the hooks that run when a tool
// invocation matches it.
type HookRule struct {
	Matcher string        `json:"matcher"` // "*", "Edit|Write", "Bash(git push:*)"
	Hooks   []HookCommand `json:"hooks"`
}

// HookCommand is one command executed for a matched rule.
type HookCommand struct {
	Command         string            `json:"command"`
	Args            []string          `json:"args,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Timeout         int               `json:"timeout,omitempty"` // seconds, default 60
	ContinueOnError bool              `json:"continueOnError,omitempty"`
}

// GateConfig declares a validation gate command.
type GateConfig struct {
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Timeout  int      `json:"timeout,omitempty"` // seconds, default 60
	Required bool     `json:"required,omitempty"`
}

// WavesConfig holds wave orchestrator settings.
type WavesConfig struct {
	MaxConcurrent int `json:"maxConcurrent,omitempty"` // tasks per wave, default 10
	TaskTimeout   int `json:"taskTimeout,omitempty"`   // seconds, default 300
}

// SyncConfig holds dotfiles sync settings.
type SyncConfig struct {
	Repo    string   `json:"repo,omitempty"`   // "owner/name" for gh repo clone
	Dir     string   `json:"dir,omitempty"`    // local checkout, default <dataDir>/sync
	Branch  string   `json:"branch,omitempty"` // default "main"
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ServerConfig holds status server settings.
type ServerConfig struct {
	Host        string   `json:"host,omitempty"`
	Port        int      `json:"port,omitempty"`
	CORSOrigins []string `json:"corsOrigins,omitempty"`
}
