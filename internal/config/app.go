package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the HTTP control plane's default bind port (spec.md §4.6/§6).
const DefaultPort = 5859

// DefaultFleetConfigPath is where the fleet JSON document is read from when
// --config is not given.
const DefaultFleetConfigPath = "mcp_servers.json"

// DefaultAppConfigPath is the optional ambient-settings YAML document
// layered beneath environment overrides (spec.md ambient configuration).
const DefaultAppConfigPath = "mcpgateway.yaml"

// yamlAppConfig mirrors the optional on-disk ambient config document:
// logging, server bind settings, and the fleet config path. The fleet's own
// JSON document is the single source of truth for child definitions.
type yamlAppConfig struct {
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Output   string `yaml:"output"`
		Rotation struct {
			MaxSize    int  `yaml:"max_size"`
			MaxBackups int  `yaml:"max_backups"`
			MaxAge     int  `yaml:"max_age"`
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"log"`
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	FleetConfigPath string `yaml:"fleet_config_path"`
}

// AppConfig holds ambient, non-fleet configuration: logging and the HTTP
// bind address/port. It mirrors the layering the teacher's
// internal/config.LoadConfig uses — defaults, then env overlay — but has no
// YAML file of its own since the only on-disk document this system reads is
// the fleet config (spec.md §4.7).
type AppConfig struct {
	Log struct {
		Level  string // DEBUG, INFO, WARN, ERROR
		Format string // text, json
		Output string // stdout, stderr, or comma-separated file paths
		Rotation struct {
			MaxSize    int
			MaxBackups int
			MaxAge     int
			Compress   bool
		}
	}

	Server struct {
		Host string
		Port int
	}

	FleetConfigPath string
}

// LoadAppConfig builds an AppConfig from defaults overlaid with the optional
// DefaultAppConfigPath YAML document and then environment variables,
// following internal/config.LoadConfig's "defaults first, env
// wins last" order.
func LoadAppConfig() *AppConfig {
	cfg := &AppConfig{}
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 3
	cfg.Log.Rotation.MaxAge = 28
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = DefaultPort
	cfg.FleetConfigPath = DefaultFleetConfigPath

	applyYAMLOverlay(cfg, DefaultAppConfigPath)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}
	if v := os.Getenv("MCP_GATEWAY_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getEnvInt("PORT", 0); v != 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("MCP_GATEWAY_CONFIG"); v != "" {
		cfg.FleetConfigPath = v
	}
	// 0.0.0.0 is required for container-deployed builds (spec.md §4.6).
	if os.Getenv("MCP_GATEWAY_DOCKER") != "" {
		cfg.Server.Host = "0.0.0.0"
	}

	return cfg
}

// applyYAMLOverlay layers an optional ambient-settings YAML document over
// cfg's defaults. A missing file is silent (it is optional); a malformed one
// is logged and ignored, matching LoadFleetConfig's tolerance for bad input
// on this system's only other on-disk document.
func applyYAMLOverlay(cfg *AppConfig, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var y yamlAppConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		slog.Warn("ambient config yaml malformed, ignoring", "path", path, "error", err)
		return
	}
	if y.Log.Level != "" {
		cfg.Log.Level = y.Log.Level
	}
	if y.Log.Format != "" {
		cfg.Log.Format = y.Log.Format
	}
	if y.Log.Output != "" {
		cfg.Log.Output = y.Log.Output
	}
	if y.Log.Rotation.MaxSize != 0 {
		cfg.Log.Rotation.MaxSize = y.Log.Rotation.MaxSize
	}
	if y.Log.Rotation.MaxBackups != 0 {
		cfg.Log.Rotation.MaxBackups = y.Log.Rotation.MaxBackups
	}
	if y.Log.Rotation.MaxAge != 0 {
		cfg.Log.Rotation.MaxAge = y.Log.Rotation.MaxAge
	}
	cfg.Log.Rotation.Compress = y.Log.Rotation.Compress
	if y.Server.Host != "" {
		cfg.Server.Host = y.Server.Host
	}
	if y.Server.Port != 0 {
		cfg.Server.Port = y.Server.Port
	}
	if y.FleetConfigPath != "" {
		cfg.FleetConfigPath = y.FleetConfigPath
	}
}

// GetLogLevel maps the configured Log.Level string onto an slog.Level.
func (c *AppConfig) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
