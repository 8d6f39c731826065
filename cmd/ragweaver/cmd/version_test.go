package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/pkg/version"
)

func TestVersionCmd_Default(t *testing.T) {
	output, err := runCLI(t, "version")

	require.NoError(t, err)
	assert.Contains(t, output, "ragweaver")
	assert.Contains(t, output, "commit")
	assert.Contains(t, output, "go:")
}

func TestVersionCmd_Short(t *testing.T) {
	output, err := runCLI(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(output))
}

func TestVersionCmd_JSON(t *testing.T) {
	output, err := runCLI(t, "version", "--json")

	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
}

func TestVersionCmd_ShortBeatsJSON(t *testing.T) {
	// --short takes precedence when both are given
	output, err := runCLI(t, "version", "--short", "--json")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(output))
}
