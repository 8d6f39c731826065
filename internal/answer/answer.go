// Package answer synthesizes the final answer from the compressed context
// using the main LLM. It owns the prompt, the confidence heuristic, and
// the degraded answers for empty context and model failure.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragweaver/ragweaver/internal/llm"
	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	answerTemperature = 0.2
	answerMaxTokens   = 8000

	// Confidence is a function of evidence volume, not answer content:
	// two points per re-ranked document, capped at 100. Context-free
	// answers sit at 50.
	confidencePerDoc    = 2.0
	maxConfidence       = 100
	noContextConfidence = 50
)

// ErrNilDependency is returned when a required dependency is missing.
var ErrNilDependency = errors.New("answer: nil dependency")

const answerSystem = "You are a precise assistant answering questions about a project knowledge base. Ground every claim in the provided context."

const answerPrompt = `Question: %s
Intent: %s
Key concepts: %s
Evidence: %d documents retrieved, %d kept after re-ranking.

Context:
%s

Work through the context silently first. Then answer the question,
citing the supporting documents inline as [Doc N]. If the context does
not contain the answer, say so plainly.`

const noContextPrompt = `Question: %s

This is a general question; no project context was retrieved. Answer
concisely from general knowledge.`

// Input carries everything the prompt needs for one synthesis.
type Input struct {
	Query     string
	Intent    rag.Intent
	Concepts  []string
	Context   string
	Retrieved int
	Reranked  int
	Mode      rag.Mode
}

// Output is the synthesized answer plus its bookkeeping.
type Output struct {
	Answer       string
	Confidence   float64
	Model        string
	InputTokens  int
	OutputTokens int
}

// Synthesizer produces answers through the main LLM.
type Synthesizer struct {
	main   llm.Provider
	logger *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Synthesizer around the main model.
func New(main llm.Provider, opts ...Option) (*Synthesizer, error) {
	if main == nil {
		return nil, fmt.Errorf("%w: main provider is required", ErrNilDependency)
	}
	s := &Synthesizer{
		main:   main,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize answers the query from the compressed context. Empty context
// short-circuits to the no-information sentinel without touching the
// model. A model failure returns the error sentinel answer alongside the
// error so callers can still record the run.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Output, error) {
	if in.Mode == rag.ModeNone {
		return s.complete(ctx, fmt.Sprintf(noContextPrompt, in.Query), noContextConfidence)
	}

	if strings.TrimSpace(in.Context) == "" {
		s.logger.Debug("synthesis_skipped", "reason", "empty_context")
		return Output{Answer: rag.NoInformationAnswer}, nil
	}

	prompt := fmt.Sprintf(answerPrompt,
		in.Query, in.Intent, conceptList(in.Concepts),
		in.Retrieved, in.Reranked, in.Context)

	confidence := confidencePerDoc * float64(in.Reranked)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	return s.complete(ctx, prompt, confidence)
}

func (s *Synthesizer) complete(ctx context.Context, prompt string, confidence float64) (Output, error) {
	resp, err := s.main.Complete(ctx, llm.Request{
		System:      answerSystem,
		Prompt:      prompt,
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})
	if err != nil {
		s.logger.Warn("synthesis_failed", "error", err)
		return Output{Answer: fmt.Sprintf("Error generating answer: %v", err)}, err
	}

	out := Output{
		Answer:       strings.TrimSpace(resp.Text),
		Confidence:   confidence,
		Model:        s.main.ModelName(),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	s.logger.Debug("answer_synthesized",
		"model", out.Model,
		"confidence", out.Confidence,
		"output_tokens", out.OutputTokens)
	return out, nil
}

func conceptList(concepts []string) string {
	if len(concepts) == 0 {
		return "(none)"
	}
	return strings.Join(concepts, ", ")
}
