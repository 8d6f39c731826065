package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupConfigFile(t *testing.T) {
	// Given: an existing config file
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: backing it up
	backupPath, err := BackupConfigFile(path)

	// Then: a timestamped copy exists next to it
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)
	assert.Contains(t, backupPath, BackupSuffix)

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestBackupConfigFile_NothingToBackup(t *testing.T) {
	backupPath, err := BackupConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Empty(t, backupPath)
}

func TestBackupConfigFile_PrunesOldBackups(t *testing.T) {
	// Given: more backups than MaxBackups, with distinct mtimes
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("current\n"), 0o644))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < MaxBackups+2; i++ {
		backup := fmt.Sprintf("%s%s.2026010%d-000000", path, BackupSuffix, i+1)
		require.NoError(t, os.WriteFile(backup, []byte("old\n"), 0o644))
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(backup, ts, ts))
	}

	// When: creating one more backup
	_, err := BackupConfigFile(path)
	require.NoError(t, err)

	// Then: only the newest MaxBackups remain
	backups, err := ListConfigBackups(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}

func TestListConfigBackups_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	older := path + BackupSuffix + ".20260101-000000"
	newer := path + BackupSuffix + ".20260102-000000"
	require.NoError(t, os.WriteFile(older, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("b"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	backups, err := ListConfigBackups(path)

	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, newer, backups[0])
}

func TestRestoreConfigFile(t *testing.T) {
	// Given: a config file and a backup with different content
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	backup := path + BackupSuffix + ".20260101-000000"
	require.NoError(t, os.WriteFile(path, []byte("current\n"), 0o644))
	require.NoError(t, os.WriteFile(backup, []byte("restored\n"), 0o644))

	// When: restoring from the backup
	require.NoError(t, RestoreConfigFile(path, backup))

	// Then: the config carries the backup content
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "restored\n", string(data))
}

func TestRestoreConfigFile_MissingBackup(t *testing.T) {
	dir := t.TempDir()
	err := RestoreConfigFile(filepath.Join(dir, "config.yaml"), filepath.Join(dir, "nope.bak"))
	assert.Error(t, err)
}
