package preflight

import (
	"fmt"
	"os"

	"github.com/ragweaver/ragweaver/internal/config"
	"github.com/ragweaver/ragweaver/internal/graph"
	"github.com/ragweaver/ragweaver/internal/symbols"
)

// CheckRipgrep looks for the rg binary the keyword scanner prefers.
func (c *Checker) CheckRipgrep() Result {
	result := Result{Name: "ripgrep"}

	path, err := c.lookPath("rg")
	if err != nil {
		result.Status = StatusWarn
		result.Message = "rg not found on PATH"
		result.Details = "keyword search falls back to the slower built-in scanner"
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckSymbolCache looks for the symbol cache built by 'ragweaver update'.
func (c *Checker) CheckSymbolCache(root string) Result {
	result := Result{Name: "symbol_cache"}

	path := symbols.CachePath(root)
	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "not built"
		result.Details = "run 'ragweaver update' to index code symbols"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
	return result
}

// CheckEntityGraph looks for the project's entity graph file.
func (c *Checker) CheckEntityGraph(root string) Result {
	result := Result{Name: "entity_graph"}

	path := graph.Path(root)
	if _, err := os.Stat(path); err != nil {
		result.Status = StatusWarn
		result.Message = "not present"
		result.Details = "entity retrieval is skipped without " + path
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckMemoryAgent verifies the configured memory agent command
// resolves. Only run when the memory retriever is enabled.
func (c *Checker) CheckMemoryAgent(cfg *config.Config) Result {
	result := Result{Name: "memory_agent"}

	if cfg.Memory.Command == "" {
		result.Status = StatusWarn
		result.Message = "enabled but no command configured"
		return result
	}
	path, err := c.lookPath(cfg.Memory.Command)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found on PATH", cfg.Memory.Command)
		result.Details = "memory retrieval returns empty results"
		return result
	}
	result.Status = StatusPass
	result.Message = path
	return result
}
