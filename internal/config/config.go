package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// StateFileName is the fixed name of the line-delimited record file inside DataDir.
const StateFileName = "agent_state"

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Mailbox contains configuration for the mail transport collaborator.
type Mailbox struct {
	Address            string  `toml:"address"`
	BaseURL            string  `toml:"base_url"`
	Token              string  `toml:"token"`
	RequestTimeout     int     `toml:"request_timeout"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	RateLimitCooldown  int     `toml:"rate_limit_cooldown"`
	MassEmailThreshold int     `toml:"mass_email_threshold"`
	EscalationAddress  string  `toml:"escalation_address"`
}

// LLM contains connection settings for the classification/extraction model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Catalog contains configuration for the catalog search backend.
type Catalog struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Workflow contains orchestration thresholds and timing.
type Workflow struct {
	PollInterval            int `toml:"poll_interval"`
	InProgressStaleHours    int `toml:"in_progress_stale_hours"`
	ClarificationStaleHours int `toml:"clarification_stale_hours"`
	MaxClarificationRounds  int `toml:"max_clarification_rounds"`
	ConfidenceThreshold     int `toml:"confidence_threshold"`
	CompletenessThreshold   int `toml:"completeness_threshold"`
	RetryMaxAttempts        int `toml:"retry_max_attempts"`
	RetryBaseDelaySeconds   int `toml:"retry_base_delay_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	MassEmail      bool   `toml:"mass_email"`
	Escalations    bool   `toml:"escalations"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tend.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Mailbox: mail transport connection and batch guards
//   - LLM: classification/extraction model connection
//   - Catalog: catalog search backend connection
//   - Workflow: orchestration thresholds, staleness, and retry policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Mailbox       Mailbox       `toml:"mailbox"`
	LLM           LLM           `toml:"llm"`
	Catalog       Catalog       `toml:"catalog"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tend/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tend.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StateFilePath returns the absolute path of the record state file.
func (c *Config) StateFilePath() string {
	return filepath.Join(c.Paths.DataDir, StateFileName)
}

// PollInterval returns the workflow poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// InProgressStaleAfter returns the staleness threshold for in-progress records.
func (c *Config) InProgressStaleAfter() time.Duration {
	return time.Duration(c.Workflow.InProgressStaleHours) * time.Hour
}

// ClarificationStaleAfter returns the staleness threshold for records awaiting replies.
func (c *Config) ClarificationStaleAfter() time.Duration {
	return time.Duration(c.Workflow.ClarificationStaleHours) * time.Hour
}

// RetryBaseDelay returns the base delay used by the retry policy.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Workflow.RetryBaseDelaySeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
