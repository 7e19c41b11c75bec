// Package config loads .mcp-commit-storyrc.yaml, the single configuration
// file consulted by both the git hook and the background worker. It is a
// YAML-with-env-interpolation loader: a project file is discovered by
// walking up from the working directory, `${VAR}` references are
// substituted from the process environment before parsing, and missing
// fields fall back to documented defaults rather than failing the load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"mcp-commit-story/pkg/model"
)

// ConfigFilename is the recognized project config file name.
const ConfigFilename = ".mcp-commit-storyrc.yaml"

// Journal holds journal placement and worker-detachment settings.
type Journal struct {
	Path       string `yaml:"path"`
	Background bool   `yaml:"background"`
}

// journalFile mirrors Journal but with a pointer Background so Load can tell
// an explicit `background: false` apart from an absent key.
type journalFile struct {
	Path       string `yaml:"path"`
	Background *bool  `yaml:"background"`
}

// configFile is the on-disk shape, used only to detect explicit overrides
// before folding them onto the default Config.
type configFile struct {
	Journal journalFile `yaml:"journal"`
	AI      AI          `yaml:"ai"`
	Chat    Chat        `yaml:"chat"`
	Git     Git         `yaml:"git"`
}

// AI holds LLM provider settings. APIKey supports `${ENV_VAR}` interpolation.
type AI struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"api_key"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	TotalBudgetSeconds int   `yaml:"total_budget_seconds"`
}

// Chat holds chat-history collection bounds.
type Chat struct {
	LookbackHours int `yaml:"lookback_hours"`
	MaxMessages   int `yaml:"max_messages"`
}

// Git holds git-diff collection settings.
type Git struct {
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Config is the fully resolved, defaulted configuration.
type Config struct {
	Journal Journal `yaml:"journal"`
	AI      AI      `yaml:"ai"`
	Chat    Chat    `yaml:"chat"`
	Git     Git     `yaml:"git"`

	// APIKeyUnresolved is true when ai.api_key referenced an environment
	// variable that was not set at load time. Callers use this to decide
	// whether AI-dependent work should run in fallback-only mode instead
	// of attempting a call that is certain to fail auth.
	APIKeyUnresolved bool
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func defaults() Config {
	return Config{
		Journal: Journal{
			Path:       "journal/",
			Background: true,
		},
		AI: AI{
			Provider:           "openai",
			TimeoutSeconds:     30,
			TotalBudgetSeconds: 180,
		},
		Chat: Chat{
			LookbackHours: 48,
			MaxMessages:   200,
		},
		Git: Git{
			ExcludePatterns: []string{"journal/**", ConfigFilename},
		},
	}
}

// Discover walks up from startDir looking for .mcp-commit-storyrc.yaml,
// stopping at the filesystem root. It returns "" with no error if none is
// found — callers treat that as "use defaults".
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads and parses the config file at path, applying `${VAR}`
// environment interpolation before YAML parsing and filling in defaults for
// every field the file omits. A missing path is not an error: Load returns
// pure defaults, matching the worker's "never block on config" posture.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		return &cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	interpolated := envVarRegex.ReplaceAllStringFunc(string(raw), func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ""
	})

	var fileCfg configFile
	if err := yaml.Unmarshal([]byte(interpolated), &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	merge(&cfg, &fileCfg)

	var rawFile configFile
	if err := yaml.Unmarshal(raw, &rawFile); err == nil {
		for _, m := range envVarRegex.FindAllStringSubmatch(rawFile.AI.APIKey, -1) {
			if _, ok := os.LookupEnv(m[1]); !ok {
				cfg.APIKeyUnresolved = true
			}
		}
	}

	return &cfg, nil
}

// merge overlays non-zero fields of the parsed file onto the defaulted base.
func merge(base *Config, override *configFile) {
	if override.Journal.Path != "" {
		base.Journal.Path = override.Journal.Path
	}
	if override.Journal.Background != nil {
		base.Journal.Background = *override.Journal.Background
	}
	if override.AI.Provider != "" {
		base.AI.Provider = override.AI.Provider
	}
	if override.AI.Model != "" {
		base.AI.Model = override.AI.Model
	}
	if override.AI.APIKey != "" {
		base.AI.APIKey = override.AI.APIKey
	}
	if override.AI.TimeoutSeconds != 0 {
		base.AI.TimeoutSeconds = override.AI.TimeoutSeconds
	}
	if override.AI.TotalBudgetSeconds != 0 {
		base.AI.TotalBudgetSeconds = override.AI.TotalBudgetSeconds
	}
	if override.Chat.LookbackHours != 0 {
		base.Chat.LookbackHours = override.Chat.LookbackHours
	}
	if override.Chat.MaxMessages != 0 {
		base.Chat.MaxMessages = override.Chat.MaxMessages
	}
	if len(override.Git.ExcludePatterns) > 0 {
		base.Git.ExcludePatterns = override.Git.ExcludePatterns
	}
}

// View returns the subset of configuration passed to the boundary filter
// and the section generators. It deliberately excludes AI.APIKey.
func (c *Config) View() model.ConfigView {
	return model.ConfigView{
		Provider:    c.AI.Provider,
		Model:       c.AI.Model,
		MaxMessages: c.Chat.MaxMessages,
		JournalPath: c.Journal.Path,
	}
}
