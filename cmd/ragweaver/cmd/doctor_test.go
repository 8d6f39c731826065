package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/preflight"
)

// seedProjectWithConfig lays out a bare project with the given config.
func seedProjectWithConfig(t *testing.T, cfgYAML string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ragweaver"), 0o755))
	require.NoError(t, os.WriteFile(config.ProjectConfigPath(root), []byte(cfgYAML), 0o644))
	return root
}

func TestDoctorCmd_StaticProvidersPass(t *testing.T) {
	// Given: an offline project on static providers
	isolateCLIEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	root := seedAnswerableProject(t)

	// When: running diagnostics
	output, err := runCLI(t, "doctor", "--project-root", root)

	// Then: nothing required fails, optional components warn
	require.NoError(t, err)
	assert.Contains(t, output, "disk_space")
	assert.Contains(t, output, "write_permissions")
	assert.Contains(t, output, "Status:")
}

func TestDoctorCmd_MissingAnthropicKeyFails(t *testing.T) {
	// Given: an anthropic-configured project with no credential
	isolateCLIEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	root := seedProjectWithConfig(t, `project: demo
llm:
  provider: anthropic
embeddings:
  provider: static
`)

	// When: running diagnostics
	output, err := runCLI(t, "doctor", "--project-root", root)

	// Then: the missing credential is a fatal configuration error
	require.Error(t, err)
	assert.Contains(t, output, "ANTHROPIC_API_KEY")
}

func TestDoctorCmd_JSON(t *testing.T) {
	isolateCLIEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	root := seedAnswerableProject(t)

	output, err := runCLI(t, "doctor", "--json", "--project-root", root)
	require.NoError(t, err)

	var report struct {
		Status string             `json:"status"`
		Checks []preflight.Result `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.NotEmpty(t, report.Checks)
	assert.Contains(t, []string{"ready", "ready_with_warnings"}, report.Status)
}
