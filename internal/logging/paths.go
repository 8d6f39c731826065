package logging

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the ragweaver data root: $RAG_DATA_DIR when set,
// otherwise ~/.ragweaver. Falls back to the temp directory when the home
// directory is unavailable.
func DefaultDataDir() string {
	if dir := os.Getenv("RAG_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragweaver")
	}
	return filepath.Join(home, ".ragweaver")
}

// DefaultLogDir returns the default log directory under the data root.
func DefaultLogDir() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "ragweaver.log")
}
