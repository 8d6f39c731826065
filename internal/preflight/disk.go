package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the least free space the data directory needs
// before index writes and cache prunes start failing mid-run (100 MB).
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace verifies free space on the filesystem holding dataDir.
func (c *Checker) CheckDiskSpace(dataDir string) Result {
	result := Result{Name: "disk_space", Required: true}

	// Walk up to the nearest existing ancestor; the data dir itself may
	// not exist before the first run.
	probe := dataDir
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(probe, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat %s: %v", probe, err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum 100 MB)", formatBytes(free))
	if free < MinDiskSpaceBytes {
		result.Status = StatusFail
		result.Details = "free disk space or point paths.data_dir elsewhere"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckWritePermissions verifies the data directory is writable,
// creating it if needed.
func (c *Checker) CheckWritePermissions(dataDir string) Result {
	result := Result{Name: "write_permissions", Required: true}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dataDir, err)
		return result
	}
	probe := filepath.Join(dataDir, ".preflight")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dataDir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dataDir
	return result
}

func formatBytes(n uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)
	switch {
	case n >= tb:
		return fmt.Sprintf("%.1f TB", float64(n)/tb)
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
