package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/bibreview/config.yml.
type GlobalConfig struct {
	RepoPath string `yaml:"repo_path,omitempty"` // Repository used when not inside one
	LogLevel string `yaml:"log_level,omitempty"` // debug, info, warn or error
	MaxDepth int    `yaml:"max_depth,omitempty"` // Element nesting limit for imports; 0 keeps the default
	User     string `yaml:"user,omitempty"`      // Reviewer name, overridden by the repository's default_user
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "bibreview"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	// EnvRoot overrides the directory repository discovery starts from.
	EnvRoot = "BIBREVIEW_ROOT"
	// EnvLogLevel overrides log_level.
	EnvLogLevel = "BIBREVIEW_LOG_LEVEL"
)

// ValidLogLevels lists the accepted log_level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/bibreview/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
// Environment overrides are applied on top of the file.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	cfg := &GlobalConfig{}
	if path := GlobalConfigPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	if cfg.RepoPath != "" {
		cfg.RepoPath = ExpandPath(cfg.RepoPath)
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfigCache = cfg
	return cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// Validate checks the log level and depth limit.
func (c *GlobalConfig) Validate() error {
	if c.LogLevel != "" {
		valid := false
		for _, l := range ValidLogLevels {
			if strings.EqualFold(c.LogLevel, l) {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log_level: %s (valid: %v)", c.LogLevel, ValidLogLevels)
		}
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("invalid max_depth: %d", c.MaxDepth)
	}
	return nil
}

// StartDir returns where repository discovery should begin: BIBREVIEW_ROOT
// when set, otherwise the working directory.
func StartDir() string {
	if root := os.Getenv(EnvRoot); root != "" {
		return ExpandPath(root)
	}
	return "."
}

// LocateRepository finds the repository from StartDir, falling back to the
// global repo_path.
func LocateRepository() (string, error) {
	root, err := FindRepository(StartDir())
	if err == nil {
		return root, nil
	}

	cfg, cfgErr := LoadGlobalConfig()
	if cfgErr != nil || cfg.RepoPath == "" {
		return "", err
	}
	if !IsRepository(cfg.RepoPath) {
		return "", fmt.Errorf("configured repo_path is not a bibreview repository: %s", cfg.RepoPath)
	}
	return filepath.Abs(cfg.RepoPath)
}

// HelpfulConfigMessage returns a hint for when no repository can be found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No bibreview repository found.

Run 'bibreview init' in your project, or create %s to set a default:
  mkdir -p %s
  echo 'repo_path: /path/to/your/project' > %s`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
