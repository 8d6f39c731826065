package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/graph"
	"github.com/ragweaver/ragweaver/internal/symbols"
)

func TestUpdateCmd_IndexesProject(t *testing.T) {
	// Given: an offline project with docs and code
	dataDir := isolateCLIEnv(t)
	root := seedAnswerableProject(t)

	// When: running a full update
	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)

	// Then: every store materializes under the project data directory
	require.NoError(t, err)
	projectDir := filepath.Join(dataDir, "projects", "demo")
	assert.FileExists(t, filepath.Join(projectDir, "docstore.db"))
	assert.DirExists(t, filepath.Join(projectDir, "keyword.bleve"))

	// The symbol cache lands in the project root, next to the config.
	assert.FileExists(t, symbols.CachePath(root))
}

func TestUpdateCmd_SecondRunSkipsUnchanged(t *testing.T) {
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)

	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)

	// A second pass over the unchanged tree must also succeed.
	_, err = runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)
}

func TestUpdateCmd_SymbolsOnly(t *testing.T) {
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)

	output, err := runCLI(t, "update", "--symbols-only", "--project-root", root)

	require.NoError(t, err)
	assert.Contains(t, output, "Symbol cache and entity graph refreshed")
	assert.FileExists(t, symbols.CachePath(root))
}

func TestUpdateCmd_PicksUpEntityGraph(t *testing.T) {
	// Given: a project with an entity graph card file
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)
	cards := `{"entities": [{"name": "billing-service", "type": "service", "description": "Handles invoices."}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ragweaver", graph.GraphFileName), []byte(cards), 0o644))

	// When: updating
	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)

	// Then: stats sees the entities
	output, err := runCLI(t, "stats", "--project-root", root)
	require.NoError(t, err)
	assert.Contains(t, output, "Graph entities:  1")
}
