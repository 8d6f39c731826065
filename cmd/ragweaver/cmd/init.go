package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragweaver/ragweaver/configs"
	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/output"
	"github.com/ragweaver/ragweaver/pkg/version"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize ragweaver for a project",
		Long: `Initialize ragweaver for the current project.

This command:
1. Detects the project type (go, node, python)
2. Writes a commented configuration scaffold to .ragweaver/config.yaml
3. Adds the generated symbol cache to .gitignore

The scaffold documents every setting with its default; the defaults work
without editing anything. Run 'ragweaver update' afterwards to build the
knowledge base.`,
		Example: `  # Initialize in the current project
  ragweaver init

  # Reinitialize, backing up the existing config first
  ragweaver init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration (the old file is backed up)")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, err := resolveRoot()
	if err != nil {
		return err
	}

	projectType := config.DetectProjectType(root)
	project := flagProject
	if project == "" {
		project = os.Getenv("RAG_PROJECT")
	}
	if project == "" {
		project = config.ProjectName(root)
	}

	out.Statusf("🚀", "ragweaver %s - Initializing...", version.Version)
	out.Newline()
	out.Statusf("📁", "Project: %s (%s)", project, projectType)

	cfgPath := config.ProjectConfigPath(root)
	if _, err := os.Stat(cfgPath); err == nil {
		if !force {
			out.Newline()
			out.Warning("Project already initialized (.ragweaver/config.yaml exists)")
			out.Status("💡", "Use --force to overwrite (the old file is backed up)")
			return nil
		}
		backup, err := config.BackupConfigFile(cfgPath)
		if err != nil {
			return fmt.Errorf("backup existing config: %w", err)
		}
		if backup != "" {
			out.Statusf("💾", "Backup: %s", backup)
		}
	}

	scaffold := renderConfigScaffold(project, projectType)
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(scaffold), 0o644); err != nil {
		return fmt.Errorf("write config scaffold: %w", err)
	}
	out.Statusf("📝", "Created %s", cfgPath)

	added, err := ensureGitignore(root)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Statusf("📝", "Added %s to .gitignore", gitignoreEntry)
	}

	out.Newline()
	out.Success("Initialization complete!")
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Statusf("", "  1. Review %s (optional, defaults work)", cfgPath)
	out.Status("", "  2. Run 'ragweaver update' to build the knowledge base")
	out.Status("", "  3. Ask a question: ragweaver ask \"How does X work?\"")

	return nil
}

// renderConfigScaffold fills the embedded template with the detected
// project name and type.
func renderConfigScaffold(project string, projectType config.ProjectType) string {
	s := strings.ReplaceAll(configs.ProjectConfigTemplate, "{{PROJECT}}", project)
	return strings.ReplaceAll(s, "{{PROJECT_TYPE}}", string(projectType))
}

// gitignoreEntry is the generated symbol cache. The config scaffold and
// the entity graph stay committed; only machine-produced state is ignored.
const gitignoreEntry = ".ragweaver/symbols.json"

// hasSymbolCacheIgnore reports whether the symbol cache is already
// covered, either by the exact entry or by ignoring the whole directory.
func hasSymbolCacheIgnore(content string) bool {
	patterns := []string{
		gitignoreEntry,
		"/" + gitignoreEntry,
		".ragweaver",
		".ragweaver/",
		"/.ragweaver",
		"/.ragweaver/",
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, pattern := range patterns {
			if line == pattern {
				return true
			}
		}
	}
	return false
}

// ensureGitignore adds the symbol cache to .gitignore if not present.
// Returns (true, nil) if added, (false, nil) if already covered.
func ensureGitignore(projectRoot string) (bool, error) {
	gitignorePath := filepath.Join(projectRoot, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}

	if hasSymbolCacheIgnore(string(content)) {
		return false, nil
	}

	// Match the existing line ending, default to LF.
	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, []byte(lineEnding)...)
	}

	var entry string
	if len(content) == 0 {
		entry = fmt.Sprintf("# ragweaver symbol cache (auto-generated)%s%s%s",
			lineEnding, gitignoreEntry, lineEnding)
	} else {
		entry = fmt.Sprintf("%s# ragweaver symbol cache (auto-generated)%s%s%s",
			lineEnding, lineEnding, gitignoreEntry, lineEnding)
	}

	content = append(content, []byte(entry)...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}

	return true, nil
}
