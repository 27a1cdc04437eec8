// Package config handles repository configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/bibreview/internal/storage"
)

// Config represents repository configuration stored in .bibreview/config.json.
type Config struct {
	BibTeXPath  string `json:"bibtex_path,omitempty"`  // Target of auto export, relative to the root unless absolute
	DefaultUser string `json:"default_user,omitempty"` // Reviewer name used when none is given
}

const (
	BibreviewDir = ".bibreview"
	ConfigFile   = "config.json"
	BaseFile     = "base.json"
	TagsFile     = "tags.jsonl"
	RefsFile     = "refs.jsonl"
	CacheDir     = "cache"
	DBFile       = "refs.db"

	// DefaultBibTeXFile is used when bibtex_path is not configured.
	DefaultBibTeXFile = "references.bib"
)

// BibreviewPath returns the path to the .bibreview directory from a root path.
func BibreviewPath(root string) string {
	return filepath.Join(root, BibreviewDir)
}

// ConfigPath returns the path to config.json from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, BibreviewDir, ConfigFile)
}

// BasePath returns the path to base.json from a root path.
func BasePath(root string) string {
	return filepath.Join(root, BibreviewDir, BaseFile)
}

// TagsPath returns the path to tags.jsonl from a root path.
func TagsPath(root string) string {
	return filepath.Join(root, BibreviewDir, TagsFile)
}

// RefsPath returns the path to refs.jsonl from a root path.
func RefsPath(root string) string {
	return filepath.Join(root, BibreviewDir, RefsFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, BibreviewDir, CacheDir)
}

// DBPath returns the path to refs.db from a root path.
func DBPath(root string) string {
	return filepath.Join(root, BibreviewDir, CacheDir, DBFile)
}

// StorageFiles returns the JSONL layout of the repository at root.
func StorageFiles(root string) storage.Files {
	return storage.Files{
		Base: BasePath(root),
		Tags: TagsPath(root),
		Refs: RefsPath(root),
	}
}

// HasBase reports whether a base has been imported into the repository.
func HasBase(root string) bool {
	_, err := os.Stat(BasePath(root))
	return err == nil
}

// IsRepository checks if the given path contains a bibreview repository.
func IsRepository(root string) bool {
	info, err := os.Stat(BibreviewPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a bibreview repository.
// Returns the repository root path or an error if not found.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in a bibreview repository (no .bibreview directory found)")
		}
		abs = parent
	}
}

// Load reads configuration from the repository at the given root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// ResolveBibTeXPath returns the absolute auto export target for the
// repository at root.
func (c *Config) ResolveBibTeXPath(root string) string {
	path := c.BibTeXPath
	if path == "" {
		path = DefaultBibTeXFile
	}
	path = ExpandPath(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ValidateBibTeXPath checks that a bibtex_path names a .bib file whose
// directory exists. Relative paths are resolved against root.
func ValidateBibTeXPath(root, path string) error {
	if path == "" {
		return nil // Empty defaults to references.bib at the root
	}

	if !strings.EqualFold(filepath.Ext(path), ".bib") {
		return fmt.Errorf("bibtex_path must end in .bib: %s", path)
	}

	expanded := ExpandPath(path)
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(root, expanded)
	}

	dir := filepath.Dir(expanded)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	if info, err := os.Stat(expanded); err == nil && info.IsDir() {
		return fmt.Errorf("bibtex_path is a directory: %s", expanded)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
