package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/waveline-ai/waveline/internal/mcp"
	"github.com/waveline-ai/waveline/pkg/types"
)

// Config is the fully resolved runtime configuration: the merged
// document plus every mcpServers entry bound to a transport config.
// Binding happens here so an unknown transport type or a missing
// command fails at load, not when the server is first dialed.
type Config struct {
	types.Config

	Servers map[string]mcp.ServerConfig
}

// credentialTimeout bounds each credentialCommand execution.
const credentialTimeout = 10 * time.Second

// Load loads configuration from multiple sources (priority order):
// 1. User config (~/.waveline/ or WAVELINE_CONFIG_DIR)
// 2. XDG config (~/.config/waveline/)
// 3. Project config (<directory>/.waveline/)
// 4. WAVELINE_CONFIG file
// 5. WAVELINE_CONFIG_CONTENT inline JSON
// 6. Environment variables
//
// A <directory>/.env file is loaded into the environment first so that
// ${env:VAR} interpolation and credential commands can see it.
// Variables already set in the environment win.
func Load(directory string) (*Config, error) {
	doc := &types.Config{}

	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)
	var loadErr error

	loadOnce := func(path string, baseDir string) {
		if loadErr != nil {
			return
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		ok, err := loadConfigFile(path, doc, baseDir)
		if err != nil {
			loadErr = err
			return
		}
		if ok {
			loaded[absPath] = true
		}
	}

	// 1. User config (~/.waveline/, overridable via WAVELINE_CONFIG_DIR)
	userDir := GetConfigDir()
	loadOnce(filepath.Join(userDir, "config.json"), userDir)
	loadOnce(filepath.Join(userDir, "config.jsonc"), userDir)

	// 2. XDG config (~/.config/waveline/)
	xdgDir := XDGConfigPath()
	loadOnce(filepath.Join(xdgDir, "config.json"), xdgDir)
	loadOnce(filepath.Join(xdgDir, "config.jsonc"), xdgDir)

	// 3. Project config
	if directory != "" {
		projectDir := filepath.Join(directory, ".waveline")
		loadOnce(filepath.Join(projectDir, "config.json"), projectDir)
		loadOnce(filepath.Join(projectDir, "config.jsonc"), projectDir)
	}

	// 4. WAVELINE_CONFIG file override
	if configPath := os.Getenv("WAVELINE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	if loadErr != nil {
		return nil, loadErr
	}

	// 5. WAVELINE_CONFIG_CONTENT inline JSON
	if content := os.Getenv("WAVELINE_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal([]byte(content), &inline); err != nil {
			return nil, fmt.Errorf("WAVELINE_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(doc, &inline)
	}

	// 6. Environment variables (highest priority)
	applyEnvOverrides(doc)

	if doc.DataDir == "" {
		doc.DataDir = DefaultDataDir()
	}

	if err := resolveCredentials(doc); err != nil {
		return nil, err
	}

	servers, err := bindServers(doc)
	if err != nil {
		return nil, err
	}

	return &Config{Config: *doc, Servers: servers}, nil
}

// loadConfigFile loads a single config file with interpolation support.
// A missing file is not an error; an unreadable document is.
func loadConfigFile(path string, doc *types.Config, baseDir string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}

	mergeConfig(doc, &fileConfig)
	return true, nil
}

var (
	envPattern  = regexp.MustCompile(`\$\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\$\{file:([^}]+)\}`)
)

// interpolate processes ${env:VAR} and ${file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Maps merge by key,
// scalars and sections overwrite when set; for hooks the later tier
// replaces the rule list per event.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}

	if source.MCPServers != nil {
		if target.MCPServers == nil {
			target.MCPServers = make(map[string]types.MCPServerConfig)
		}
		for k, v := range source.MCPServers {
			target.MCPServers[k] = v
		}
	}

	if source.Hooks != nil {
		if target.Hooks == nil {
			target.Hooks = make(map[string][]types.HookRule)
		}
		for k, v := range source.Hooks {
			target.Hooks[k] = v
		}
	}

	if source.Gates != nil {
		if target.Gates == nil {
			target.Gates = make(map[string]types.GateConfig)
		}
		for k, v := range source.Gates {
			target.Gates[k] = v
		}
	}

	if source.Waves != nil {
		target.Waves = source.Waves
	}
	if source.Sync != nil {
		target.Sync = source.Sync
	}
	if source.Server != nil {
		target.Server = source.Server
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(doc *types.Config) {
	if level := os.Getenv("WAVELINE_LOG_LEVEL"); level != "" {
		doc.LogLevel = level
	}
	if dir := os.Getenv("WAVELINE_DATA_DIR"); dir != "" {
		doc.DataDir = dir
	}
}

// resolveCredentials runs each server's credentialCommand and
// substitutes ${credential} in that server's headers and env values.
func resolveCredentials(doc *types.Config) error {
	for name, server := range doc.MCPServers {
		if server.CredentialCommand == "" {
			continue
		}

		secret, err := runCredentialCommand(server.CredentialCommand)
		if err != nil {
			return fmt.Errorf("mcp server %q: credential command: %w", name, err)
		}

		for k, v := range server.Headers {
			server.Headers[k] = strings.ReplaceAll(v, "${credential}", secret)
		}
		for k, v := range server.Env {
			server.Env[k] = strings.ReplaceAll(v, "${credential}", secret)
		}
		doc.MCPServers[name] = server
	}
	return nil
}

func runCredentialCommand(command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), credentialTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", command).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// bindServers validates every mcpServers entry and binds it to a
// transport config.
func bindServers(doc *types.Config) (map[string]mcp.ServerConfig, error) {
	servers := make(map[string]mcp.ServerConfig, len(doc.MCPServers))
	for name, entry := range doc.MCPServers {
		sc, err := bindServer(name, entry)
		if err != nil {
			return nil, err
		}
		servers[name] = sc
	}
	return servers, nil
}

func bindServer(name string, entry types.MCPServerConfig) (mcp.ServerConfig, error) {
	kind, err := mcp.ParseTransportKind(entry.Type)
	if err != nil {
		return mcp.ServerConfig{}, fmt.Errorf("mcp server %q: %w", name, err)
	}

	sc := mcp.ServerConfig{
		Name:      name,
		Transport: kind,
		Env:       entry.Env,
		URL:       entry.URL,
		PostURL:   entry.PostURL,
		HealthURL: entry.HealthURL,
		Headers:   entry.Headers,
	}
	if entry.Command != "" {
		sc.Command = append([]string{entry.Command}, entry.Args...)
	}

	switch kind {
	case mcp.TransportStdio:
		if len(sc.Command) == 0 {
			return mcp.ServerConfig{}, fmt.Errorf("mcp server %q: stdio transport requires a command", name)
		}
	case mcp.TransportSSE, mcp.TransportHTTP:
		if sc.URL == "" {
			return mcp.ServerConfig{}, fmt.Errorf("mcp server %q: %s transport requires a url", name, kind)
		}
	}

	if entry.Enabled != nil && !*entry.Enabled {
		sc.Disabled = true
	}
	if entry.CallTimeout > 0 {
		sc.Timeout = time.Duration(entry.CallTimeout) * time.Second
	}
	if entry.ConnectTimeout > 0 {
		sc.ConnectTimeout = time.Duration(entry.ConnectTimeout) * time.Second
	}
	if entry.MaxRestarts != nil {
		sc.MaxRestarts = *entry.MaxRestarts
	}
	if entry.HealthInterval != 0 {
		sc.HealthInterval = time.Duration(entry.HealthInterval) * time.Second
	}

	return sc, nil
}
