package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the smallest NOFILE limit that leaves headroom
// for the SQLite store, the bleve index segments, and the retriever
// fan-out all holding files at once.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the process file descriptor limit.
func (c *Checker) CheckFileDescriptors() Result {
	result := Result{Name: "file_descriptors", Required: true}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "raise it with 'ulimit -n 4096'"
		return result
	}
	result.Status = StatusPass
	return result
}
