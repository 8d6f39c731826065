// Package eval scores the answering engine against a suite of questions
// with known-good answers. Scoring is cheap token-overlap arithmetic, not
// an LLM judge: precision and completeness compare answer and ideal token
// sets, context usage checks for inline [Doc N] citations, and the
// hallucination score inverts a penalty for low-overlap uncited answers.
// All scores are on a 0-10 scale where higher is better.
package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// PassThreshold is the overall score at or above which a test passes.
const PassThreshold = 6.0

// ErrEmptySuite is returned for suites with no tests.
var ErrEmptySuite = errors.New("eval: suite has no tests")

// Engine is the answering surface under evaluation.
type Engine interface {
	Ask(ctx context.Context, question string) (*rag.RunRecord, error)
}

// Test is one suite entry.
type Test struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"ideal_answer"`
}

// Suite is a set of questions with reference answers.
type Suite struct {
	Name  string `json:"name,omitempty"`
	Tests []Test `json:"tests"`
}

// Scores are the per-answer quality metrics, each 0-10.
type Scores struct {
	Precision     float64 `json:"answer_precision"`
	ContextUsage  float64 `json:"context_usage"`
	Hallucination float64 `json:"hallucination_risk"`
	Completeness  float64 `json:"completeness"`
	Overall       float64 `json:"overall"`
}

// Result is the outcome for one test.
type Result struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	ElapsedSec float64 `json:"elapsed_sec"`
	FromCache  bool    `json:"from_cache"`
	Err        string  `json:"error,omitempty"`
	Scores     Scores  `json:"scores"`
}

// Summary aggregates a report.
type Summary struct {
	AvgOverall       float64 `json:"avg_overall"`
	AvgPrecision     float64 `json:"avg_precision"`
	AvgContextUsage  float64 `json:"avg_context_usage"`
	AvgHallucination float64 `json:"avg_hallucination_risk"`
	AvgCompleteness  float64 `json:"avg_completeness"`
	PassRate         float64 `json:"pass_rate"`
}

// Report is the serialized evaluation run.
type Report struct {
	Suite      string   `json:"suite"`
	Project    string   `json:"project"`
	StartedAt  string   `json:"started_at"`
	ElapsedSec float64  `json:"elapsed_sec"`
	Results    []Result `json:"results"`
	Summary    Summary  `json:"summary"`
}

// Runner executes suites against an engine.
type Runner struct {
	engine  Engine
	project string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner builds a Runner for the given engine and project name.
func NewRunner(engine Engine, project string, opts ...Option) *Runner {
	r := &Runner{
		engine:  engine,
		project: project,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadSuite reads and validates a suite file. A missing name defaults to
// the file's base name.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read suite: %w", err)
	}
	var suite Suite
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("eval: parse suite: %w", err)
	}
	if len(suite.Tests) == 0 {
		return nil, ErrEmptySuite
	}
	for i, tc := range suite.Tests {
		if strings.TrimSpace(tc.Question) == "" {
			return nil, fmt.Errorf("eval: test %d has an empty question", i)
		}
	}
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &suite, nil
}

// Run asks every suite question in order and scores the answers. A failed
// ask is recorded with an empty answer rather than aborting the run; only
// context cancellation stops a suite early.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*Report, error) {
	if suite == nil || len(suite.Tests) == 0 {
		return nil, ErrEmptySuite
	}

	started := r.now()
	rep := &Report{
		Suite:     suite.Name,
		Project:   r.project,
		StartedAt: started.UTC().Format(time.RFC3339),
		Results:   make([]Result, 0, len(suite.Tests)),
	}
	for i, tc := range suite.Tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := Result{Question: tc.Question}
		rec, err := r.engine.Ask(ctx, tc.Question)
		if err != nil {
			res.Err = err.Error()
			r.logger.Warn("eval_ask_failed", "question", i+1, "error", err)
		} else {
			res.Answer = rec.Answer
			res.Confidence = rec.Confidence
			res.ElapsedSec = rec.ElapsedSec
			res.FromCache = rec.FromCache
		}
		res.Scores = scoreAnswer(tc.IdealAnswer, res.Answer)
		rep.Results = append(rep.Results, res)
		r.logger.Info("eval_scored",
			"question", i+1,
			"of", len(suite.Tests),
			"overall", res.Scores.Overall,
			"confidence", res.Confidence)
	}
	rep.ElapsedSec = round2(r.now().Sub(started).Seconds())
	rep.Summary = summarize(rep.Results)
	return rep, nil
}

// WriteReport stores the report under dir as eval_<timestamp>.json and
// returns the file path.
func (r *Runner) WriteReport(dir string, rep *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("eval: create report dir: %w", err)
	}
	ts := r.now()
	if t, err := time.Parse(time.RFC3339, rep.StartedAt); err == nil {
		ts = t
	}
	path := filepath.Join(dir, fmt.Sprintf("eval_%s.json", ts.Format("20060102_150405")))
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("eval: encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("eval: write report: %w", err)
	}
	return path, nil
}

// WriteTable renders the report as an aligned text table.
func WriteTable(w io.Writer, rep *Report) {
	fmt.Fprintf(w, "Suite %s (%s): %d questions in %.1fs\n\n", rep.Suite, rep.Project, len(rep.Results), rep.ElapsedSec)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tOVERALL\tPREC\tCTX\tHALL\tCOMP\tCONF\tQUESTION")
	for i, res := range rep.Results {
		q := res.Question
		if len(q) > 48 {
			q = q[:45] + "..."
		}
		if res.Err != "" {
			q += " (failed)"
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			i+1,
			res.Scores.Overall,
			res.Scores.Precision,
			res.Scores.ContextUsage,
			res.Scores.Hallucination,
			res.Scores.Completeness,
			res.Confidence,
			q)
	}
	tw.Flush()

	s := rep.Summary
	fmt.Fprintf(w, "\nAverages: overall %.2f, precision %.2f, context %.2f, hallucination %.2f, completeness %.2f\n",
		s.AvgOverall, s.AvgPrecision, s.AvgContextUsage, s.AvgHallucination, s.AvgCompleteness)
	fmt.Fprintf(w, "Pass rate: %.1f%% (overall >= %.1f)\n", s.PassRate*100, PassThreshold)
}

// scoreAnswer computes the token-overlap metrics for one answer.
func scoreAnswer(ideal, answer string) Scores {
	idealSet := tokens(ideal)
	answerSet := tokens(answer)

	inter := 0
	for tok := range idealSet {
		if _, ok := answerSet[tok]; ok {
			inter++
		}
	}
	precision := 0.0
	if len(answerSet) > 0 && len(idealSet) > 0 {
		precision = float64(inter) / float64(len(answerSet))
	}
	completeness := 0.0
	if len(idealSet) > 0 {
		completeness = float64(inter) / float64(len(idealSet))
	}
	usage := 0.3
	if strings.Contains(answer, "[Doc ") {
		usage = 1.0
	}
	penalty := hallucinationPenalty(precision, usage)

	s := Scores{
		Precision:     round2(precision * 10),
		ContextUsage:  round2(usage * 10),
		Hallucination: round2((1 - penalty) * 10),
		Completeness:  round2(completeness * 10),
	}
	s.Overall = round2((s.Precision + s.ContextUsage + s.Hallucination + s.Completeness) / 4)
	return s
}

// hallucinationPenalty grades how likely the answer is invented: high
// ideal overlap clears it, low overlap without citations condemns it.
func hallucinationPenalty(overlap, usage float64) float64 {
	switch {
	case overlap > 0.5:
		return 0
	case overlap < 0.2 && usage < 0.5:
		return 0.8
	default:
		return 0.3
	}
}

// tokens lowercases and splits on every non-alphanumeric rune.
func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			set[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

func summarize(results []Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}
	var s Summary
	passed := 0
	for _, res := range results {
		s.AvgOverall += res.Scores.Overall
		s.AvgPrecision += res.Scores.Precision
		s.AvgContextUsage += res.Scores.ContextUsage
		s.AvgHallucination += res.Scores.Hallucination
		s.AvgCompleteness += res.Scores.Completeness
		if res.Scores.Overall >= PassThreshold {
			passed++
		}
	}
	n := float64(len(results))
	s.AvgOverall = round2(s.AvgOverall / n)
	s.AvgPrecision = round2(s.AvgPrecision / n)
	s.AvgContextUsage = round2(s.AvgContextUsage / n)
	s.AvgHallucination = round2(s.AvgHallucination / n)
	s.AvgCompleteness = round2(s.AvgCompleteness / n)
	s.PassRate = round2(float64(passed) / n)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
