// Package memory wraps an external conversation-memory agent behind a
// subprocess. The agent's output is messy by design: human-oriented status
// lines, ANSI colour, and a JSON payload somewhere in the middle. The client
// accepts all of it — clean JSON, JSON after a status marker, or truncated
// garbage recovered by regex. Garbled output degrades to an empty result;
// timeouts and non-zero exits come back as errors so callers can record the
// failed source.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	// DefaultTimeout bounds a synchronous agent invocation.
	DefaultTimeout = 30 * time.Second

	// minObservationChars filters trivially short observations out of both
	// the JSON and the regex acceptance paths.
	minObservationChars = 100

	// maxScanBytes caps how much agent output the fallback extractor
	// scans. Anything past this is noise from a runaway agent.
	maxScanBytes = 500 << 10

	// successMarker is printed by the agent right before its JSON payload.
	successMarker = "✅"
)

// Client invokes the memory agent. The zero value is a disabled client that
// always returns empty results.
type Client struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger

	// runner is swapped in tests to avoid spawning real processes.
	runner func(ctx context.Context, command string, args ...string) ([]byte, error)
}

// Config configures the memory client.
type Config struct {
	// Command is the agent executable. Empty disables the client.
	Command string

	// Args are passed before the query text.
	Args []string

	// Timeout bounds one invocation; zero uses DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// NewClient builds a memory client for the configured agent command.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		logger:  logger,
		runner:  runCommand,
	}
}

// Enabled reports whether an agent command is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.command != ""
}

// Search runs the agent for the query and parses whatever comes back into
// documents tagged source=memory. Garbled output produces an empty slice
// with a nil error; a timeout or non-zero exit returns an error so the
// orchestrator can mark the source as failed instead of silently empty.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	if !c.Enabled() || limit <= 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(append([]string{}, c.args...), query)
	output, err := c.runner(runCtx, c.command, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("memory_agent_failed",
			slog.String("command", c.command),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("memory agent %s: %w", c.command, err)
	}

	docs := ParseAgentOutput(output)
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func runCommand(ctx context.Context, command string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// agentEntity is the structured payload shape the agent emits on success.
type agentEntity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt"`
}

type agentPayload struct {
	Entities []agentEntity `json:"entities"`
}

// ParseAgentOutput turns raw agent stdout into documents. It tries the
// structured path first — ANSI stripped, JSON located after the success
// marker — and falls back to regex extraction of quoted observations when
// the JSON is truncated or malformed.
func ParseAgentOutput(raw []byte) []rag.Document {
	if len(raw) > maxScanBytes {
		raw = raw[:maxScanBytes]
	}
	clean := stripANSI(string(raw))

	if payload, ok := locateJSON(clean); ok {
		var parsed agentPayload
		if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
			return entitiesToDocuments(parsed.Entities)
		}
	}
	return extractObservations(clean)
}

func entitiesToDocuments(entities []agentEntity) []rag.Document {
	var docs []rag.Document
	for _, ent := range entities {
		for _, obs := range ent.Observations {
			if len(obs) <= minObservationChars {
				continue
			}
			doc := rag.NewDocument(obs, rag.SourceMemory)
			doc.Score = 0.7
			doc.Metadata = map[string]string{}
			if ent.Name != "" {
				doc.Metadata["entity"] = ent.Name
			}
			if ent.EntityType != "" {
				doc.Metadata["type"] = ent.EntityType
			}
			if ent.CreatedAt != "" {
				doc.Metadata["createdAt"] = ent.CreatedAt
			}
			if ent.UpdatedAt != "" {
				doc.Metadata["updatedAt"] = ent.UpdatedAt
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

// locateJSON finds the JSON object in agent output: after the success
// marker when present, otherwise from the first '{'. The object is clipped
// at its balanced closing brace so trailing log lines do not break decoding.
func locateJSON(s string) (string, bool) {
	if i := strings.Index(s, successMarker); i >= 0 {
		s = s[i+len(successMarker):]
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	s = s[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	// Unbalanced: truncated payload, let the regex fallback handle it.
	return "", false
}

// observationPattern matches double-quoted strings long enough to be real
// observations. Escaped quotes inside stay part of the match.
var observationPattern = regexp.MustCompile(`"((?:[^"\\]|\\.){100,}?)"`)

// extractObservations is the degraded acceptance path: pull anything that
// looks like a quoted observation out of the raw text.
func extractObservations(s string) []rag.Document {
	matches := observationPattern.FindAllStringSubmatch(s, -1)
	var docs []rag.Document
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		text := unescapeJSONString(m[1])
		if len(text) <= minObservationChars {
			continue
		}
		doc := rag.NewDocument(text, rag.SourceMemory)
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		doc.Score = 0.5 // recovered text ranks below structured output
		docs = append(docs, doc)
	}
	return docs
}

func unescapeJSONString(s string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err != nil {
		return s
	}
	return decoded
}

// ansiPattern matches colour and cursor escape sequences in agent output.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
