// Package config loads the environment-driven configuration for
// cmd/agentruntimed, following the teacher's Load/Validate pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr             = "127.0.0.1:8080"
	defaultShutdownTimeout      = 5 * time.Second
	defaultDataDir              = "./data"
	defaultTemplatesDir         = "./templates"
	defaultMaxConcurrentSibling = 4
	defaultReconcileCronExpr    = "*/5 * * * *"
	defaultLogFormat            = "tint"
	defaultRateLimitRPS         = 5.0
	defaultRateLimitBurst       = 10
)

// Config controls process boot, HTTP surface, and the concrete adapters
// wired into the runtime.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogFormat       string // "tint" or "json"

	DataDir      string // adapters/creditsqlite database directory
	TemplatesDir string // adapters/tomltemplates root

	AnthropicAPIKey  string
	AnthropicBaseURL string

	MCPCommand string
	MCPArgs    []string

	MaxConcurrentSiblings int
	FreeTierAgentIDs      []string
	ReconcileCronExpr     string

	APIKeys []string // internal/policyauth allowlist; empty disables auth

	RateLimitRPS   float64 // internal/policylimit per-identity token rate
	RateLimitBurst int     // internal/policylimit per-identity burst
}

// Load reads runtime configuration from environment variables, applying
// defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:              defaultHTTPAddr,
		ShutdownTimeout:       defaultShutdownTimeout,
		LogFormat:             defaultLogFormat,
		DataDir:               defaultDataDir,
		TemplatesDir:          defaultTemplatesDir,
		AnthropicBaseURL:      "https://api.anthropic.com",
		MaxConcurrentSiblings: defaultMaxConcurrentSibling,
		ReconcileCronExpr:     defaultReconcileCronExpr,
		RateLimitRPS:          defaultRateLimitRPS,
		RateLimitBurst:        defaultRateLimitBurst,
	}

	if v := os.Getenv("AGENTRUNTIME_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("AGENTRUNTIME_SHUTDOWN_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGENTRUNTIME_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = parsed
	}
	if v := os.Getenv("AGENTRUNTIME_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("AGENTRUNTIME_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("AGENTRUNTIME_TEMPLATES_DIR"); v != "" {
		cfg.TemplatesDir = v
	}
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.AnthropicBaseURL = v
	}
	cfg.MCPCommand = os.Getenv("AGENTRUNTIME_MCP_COMMAND")
	if v := os.Getenv("AGENTRUNTIME_MCP_ARGS"); v != "" {
		cfg.MCPArgs = splitNonEmpty(v, " ")
	}
	if v := os.Getenv("AGENTRUNTIME_MAX_CONCURRENT_SIBLINGS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGENTRUNTIME_MAX_CONCURRENT_SIBLINGS: %w", err)
		}
		cfg.MaxConcurrentSiblings = n
	}
	if v := os.Getenv("AGENTRUNTIME_FREE_TIER_AGENTS"); v != "" {
		cfg.FreeTierAgentIDs = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("AGENTRUNTIME_RECONCILE_CRON"); v != "" {
		cfg.ReconcileCronExpr = v
	}
	if v := os.Getenv("AGENTRUNTIME_API_KEYS"); v != "" {
		cfg.APIKeys = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("AGENTRUNTIME_RATE_LIMIT_RPS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGENTRUNTIME_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = parsed
	}
	if v := os.Getenv("AGENTRUNTIME_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGENTRUNTIME_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a Config that would produce a broken runtime.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: HTTPAddr must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: ShutdownTimeout must be > 0")
	}
	switch c.LogFormat {
	case "tint", "json":
	default:
		return fmt.Errorf("config: LogFormat must be %q or %q, got %q", "tint", "json", c.LogFormat)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.TemplatesDir == "" {
		return fmt.Errorf("config: TemplatesDir must not be empty")
	}
	if c.MaxConcurrentSiblings < 0 {
		return fmt.Errorf("config: MaxConcurrentSiblings must be >= 0")
	}
	if c.ReconcileCronExpr == "" {
		return fmt.Errorf("config: ReconcileCronExpr must not be empty")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("config: ANTHROPIC_API_KEY must be set")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("config: RateLimitRPS must be > 0")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: RateLimitBurst must be > 0")
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
