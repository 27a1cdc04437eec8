package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/bibreview/internal/config"
)

var (
	initBibTeXPath string
	initUser       string
)

func init() {
	initCmd.Flags().StringVar(&initBibTeXPath, "bibtex-path", "", "BibTeX file for auto export (default references.bib)")
	initCmd.Flags().StringVar(&initUser, "user", "", "Default reviewer name")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new bibreview repository",
	Long: `Initialize a new bibreview repository in the current directory
(or BIBREVIEW_ROOT when set).

Creates:
  .bibreview/
  ├── config.json     # Repository config
  ├── .gitignore      # Ignores the cache
  └── cache/          # SQLite query cache`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(config.StartDir())
	if err != nil {
		exitWithError(ExitError, "resolving directory: %v", err)
	}

	if config.IsRepository(root) {
		exitWithError(ExitError, "directory already contains a bibreview repository")
	}
	if err := config.ValidateBibTeXPath(root, initBibTeXPath); err != nil {
		exitWithError(ExitConfigError, "invalid --bibtex-path: %v", err)
	}

	if err := os.MkdirAll(config.CachePath(root), 0755); err != nil {
		exitWithError(ExitError, "creating cache directory: %v", err)
	}
	gitignore := filepath.Join(config.BibreviewPath(root), ".gitignore")
	if err := os.WriteFile(gitignore, []byte(config.CacheDir+"/\n"), 0644); err != nil {
		exitWithError(ExitError, "creating .gitignore: %v", err)
	}

	user := initUser
	if user == "" {
		user = globalCfg.User
	}
	cfg := &config.Config{BibTeXPath: initBibTeXPath, DefaultUser: user}
	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "creating config.json: %v", err)
	}

	if humanOutput {
		fmt.Printf("Initialized bibreview repository in %s\n", root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: root})
	}
	return nil
}
