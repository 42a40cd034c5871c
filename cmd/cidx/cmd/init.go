package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jsbattig/code-indexer-sub029/configs"
	"github.com/jsbattig/code-indexer-sub029/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a project configuration file",
		Long: `Create a .cidx.yaml configuration template in the project root and
add the index directory to .gitignore.

The template documents every setting alongside its default, so
nothing needs to be edited before the first run. An existing
configuration is never overwritten unless --force is given.`,
		Example: `  # Initialize the current project
  cidx init

  # Recreate the template over an existing one
  cidx init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .cidx.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	out := cmd.OutOrStdout()

	created, err := writeProjectConfig(absPath, force)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "Created %s\n", filepath.Join(absPath, ".cidx.yaml"))
	} else {
		fmt.Fprintln(out, "Existing configuration preserved (use --force to overwrite)")
	}

	added, err := ensureGitignore(absPath)
	if err != nil {
		return err
	}
	if added {
		fmt.Fprintf(out, "Added %s/ to .gitignore\n", config.DefaultIndexDirName)
	}

	fmt.Fprintln(out, "Run 'cidx index' to build the index")
	return nil
}

// writeProjectConfig writes the template .cidx.yaml. An existing
// .cidx.yaml or .cidx.yml holds user customizations and is only
// replaced under --force.
func writeProjectConfig(root string, force bool) (bool, error) {
	yamlPath := filepath.Join(root, ".cidx.yaml")
	if !force {
		if fileExists(yamlPath) || fileExists(filepath.Join(root, ".cidx.yml")) {
			return false, nil
		}
	}
	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return false, fmt.Errorf("failed to write .cidx.yaml: %w", err)
	}
	return true, nil
}

// ensureGitignore appends the index directory to .gitignore, creating
// the file when missing. Reports whether an entry was added.
func ensureGitignore(root string) (bool, error) {
	gitignorePath := filepath.Join(root, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read .gitignore: %w", err)
	}

	if hasIndexDirIgnore(string(content)) {
		return false, nil
	}

	// Match the file's existing line endings.
	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(lineEnding)...)
	}

	entry := "# cidx index data" + lineEnding + config.DefaultIndexDirName + "/" + lineEnding
	if len(content) > 0 {
		entry = lineEnding + entry
	}
	content = append(content, []byte(entry)...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return false, fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return true, nil
}

// hasIndexDirIgnore reports whether .gitignore already covers the
// index directory in any common spelling.
func hasIndexDirIgnore(content string) bool {
	spellings := []string{
		config.DefaultIndexDirName,
		config.DefaultIndexDirName + "/",
		"/" + config.DefaultIndexDirName,
		"/" + config.DefaultIndexDirName + "/",
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, s := range spellings {
			if line == s {
				return true
			}
		}
	}
	return false
}
