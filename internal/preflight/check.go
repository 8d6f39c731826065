package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/ragweaver/ragweaver/internal/config"
)

// Status classifies a single check outcome.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the status as its word, not its ordinal.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "pass":
		*s = StatusPass
	case "warn":
		*s = StatusWarn
	case "fail":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown status %q", v)
	}
	return nil
}

// Result is the outcome of one check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r Result) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs environment diagnostics. Construct with New.
type Checker struct {
	client   *http.Client
	lookPath func(string) (string, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient replaces the probe client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

// WithLookPath replaces binary resolution (tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(ch *Checker) { ch.lookPath = fn }
}

func New(opts ...Option) *Checker {
	c := &Checker{
		client:   &http.Client{Timeout: 3 * time.Second},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the loaded configuration. root is the
// project root; dataDir is where indexes, caches, and logs are written.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config, root, dataDir string) []Result {
	results := []Result{
		c.CheckDiskSpace(dataDir),
		c.CheckWritePermissions(dataDir),
		c.CheckFileDescriptors(),
		c.CheckLLMProvider(ctx, cfg),
		c.CheckEmbedder(ctx, cfg),
		c.CheckRipgrep(),
		c.CheckSymbolCache(root),
		c.CheckEntityGraph(root),
	}
	if cfg.Memory.Enabled {
		results = append(results, c.CheckMemoryAgent(cfg))
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus folds the results into one word for reports.
func (c *Checker) SummaryStatus(results []Result) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}
