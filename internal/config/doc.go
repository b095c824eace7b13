// Package config provides configuration loading, merging, and path
// management for waveline.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. User config (~/.waveline/ or WAVELINE_CONFIG_DIR)
//  2. XDG config (~/.config/waveline/)
//  3. Project config (<directory>/.waveline/)
//  4. WAVELINE_CONFIG file
//  5. WAVELINE_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Later sources override earlier ones. Maps (mcpServers, gates) merge
// by key; hook rule lists replace per event; section pointers (waves,
// sync, server) replace wholesale.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - config.json - Standard JSON configuration
//   - config.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms:
//   - ${env:VAR_NAME} - Expands to environment variable values
//   - ${file:path} - Expands to file contents (escaped for JSON)
//
// File paths support absolute paths, paths relative to the config file
// directory, and ~/ expansion.
//
// # Credential Commands
//
// An mcpServers entry may declare a credentialCommand. It runs once at
// load time and its trimmed stdout replaces ${credential} in that
// server's headers and env values:
//
//	{
//	  "mcpServers": {
//	    "billing": {
//	      "type": "http",
//	      "url": "https://billing.internal/rpc",
//	      "credentialCommand": "op read op://infra/billing-mcp/token",
//	      "headers": {"Authorization": "Bearer ${credential}"}
//	    }
//	  }
//	}
//
// # Transport Binding
//
// Every mcpServers entry is validated and bound to an mcp.ServerConfig
// during Load. An unknown transport type, a stdio entry without a
// command, or a remote entry without a url is a load error rather than
// a connect-time surprise.
//
// # Environment Variable Overrides
//
//   - WAVELINE_LOG_LEVEL - Override the log level
//   - WAVELINE_DATA_DIR - Override the data directory
//   - WAVELINE_CONFIG - Path to a specific config file
//   - WAVELINE_CONFIG_CONTENT - Inline JSON configuration
//   - WAVELINE_CONFIG_DIR - Override the user config directory
//
// # Reload Watching
//
// NewWatcher watches the config directories with fsnotify and publishes
// a config.reloaded event when a config file changes. Subscribers (the
// status server, the SSE event stream) decide how to react.
package config
