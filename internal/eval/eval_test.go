package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
)

type scriptedEngine struct {
	answers map[string]*rag.RunRecord
	errs    map[string]error
	asked   []string
}

func (s *scriptedEngine) Ask(ctx context.Context, q string) (*rag.RunRecord, error) {
	s.asked = append(s.asked, q)
	if err := s.errs[q]; err != nil {
		return nil, err
	}
	if rec := s.answers[q]; rec != nil {
		return rec, nil
	}
	return &rag.RunRecord{Query: q, Answer: rag.NoInformationAnswer}, nil
}

func writeSuite(t *testing.T, suite Suite) string {
	t.Helper()
	data, err := json.Marshal(suite)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "demo_suite.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// =============================================================================
// Scoring
// =============================================================================

func TestScoreAnswer_CitedFullCoverage(t *testing.T) {
	s := scoreAnswer("The cache stores answers", "The cache stores answers [Doc 1]")

	assert.InDelta(t, 6.67, s.Precision, 0.001)
	assert.Equal(t, 10.0, s.ContextUsage)
	assert.Equal(t, 10.0, s.Hallucination) // high overlap clears the penalty
	assert.Equal(t, 10.0, s.Completeness)
	assert.InDelta(t, 9.17, s.Overall, 0.001)
}

func TestScoreAnswer_EmptyAnswer(t *testing.T) {
	s := scoreAnswer("anything at all", "")

	assert.Zero(t, s.Precision)
	assert.Equal(t, 3.0, s.ContextUsage)
	assert.InDelta(t, 2.0, s.Hallucination, 0.001) // uncited, zero overlap
	assert.Zero(t, s.Completeness)
	assert.InDelta(t, 1.25, s.Overall, 0.001)
}

func TestScoreAnswer_UncitedPartialOverlap(t *testing.T) {
	s := scoreAnswer("alpha beta gamma", "alpha delta")

	assert.Equal(t, 5.0, s.Precision)
	assert.Equal(t, 3.0, s.ContextUsage)
	assert.Equal(t, 7.0, s.Hallucination) // moderate penalty
	assert.InDelta(t, 3.33, s.Completeness, 0.001)
	assert.InDelta(t, 4.58, s.Overall, 0.001)
}

func TestTokens_LowercasesAndSplitsOnPunctuation(t *testing.T) {
	set := tokens("Hello, World! x2")

	assert.Len(t, set, 3)
	assert.Contains(t, set, "hello")
	assert.Contains(t, set, "world")
	assert.Contains(t, set, "x2")
}

// =============================================================================
// Suites
// =============================================================================

func TestLoadSuite_DefaultsNameFromFile(t *testing.T) {
	path := writeSuite(t, Suite{Tests: []Test{{Question: "q1", IdealAnswer: "a1"}}})

	suite, err := LoadSuite(path)

	require.NoError(t, err)
	assert.Equal(t, "demo_suite", suite.Name)
	assert.Len(t, suite.Tests, 1)
}

func TestLoadSuite_MissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "nope.json"))

	require.Error(t, err)
}

func TestLoadSuite_EmptyTests(t *testing.T) {
	path := writeSuite(t, Suite{Name: "empty"})

	_, err := LoadSuite(path)

	require.ErrorIs(t, err, ErrEmptySuite)
}

func TestLoadSuite_BlankQuestion(t *testing.T) {
	path := writeSuite(t, Suite{Tests: []Test{{Question: "  "}}})

	_, err := LoadSuite(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty question")
}

// =============================================================================
// Runs
// =============================================================================

func TestRunner_RunScoresAndSummarizes(t *testing.T) {
	engine := &scriptedEngine{
		answers: map[string]*rag.RunRecord{
			"how does the cache work": {
				Answer:     "The cache stores answers [Doc 1]",
				Confidence: 0.82,
				ElapsedSec: 1.2,
			},
		},
		errs: map[string]error{
			"what breaks": errors.New("llm unavailable"),
		},
	}
	suite := &Suite{
		Name: "demo",
		Tests: []Test{
			{Question: "how does the cache work", IdealAnswer: "The cache stores answers"},
			{Question: "what breaks", IdealAnswer: "nothing"},
		},
	}
	runner := NewRunner(engine, "myproj")

	rep, err := runner.Run(context.Background(), suite)

	require.NoError(t, err)
	assert.Equal(t, "demo", rep.Suite)
	assert.Equal(t, "myproj", rep.Project)
	require.Len(t, rep.Results, 2)

	first := rep.Results[0]
	assert.Empty(t, first.Err)
	assert.Equal(t, 0.82, first.Confidence)
	assert.InDelta(t, 9.17, first.Scores.Overall, 0.001)

	second := rep.Results[1]
	assert.Equal(t, "llm unavailable", second.Err)
	assert.Empty(t, second.Answer)
	assert.InDelta(t, 1.25, second.Scores.Overall, 0.001)

	assert.InDelta(t, 5.21, rep.Summary.AvgOverall, 0.001)
	assert.Equal(t, 0.5, rep.Summary.PassRate)
	assert.Equal(t, []string{"how does the cache work", "what breaks"}, engine.asked)
}

func TestRunner_RunEmptySuite(t *testing.T) {
	runner := NewRunner(&scriptedEngine{}, "p")

	_, err := runner.Run(context.Background(), &Suite{Name: "x"})

	require.ErrorIs(t, err, ErrEmptySuite)
}

func TestRunner_RunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(&scriptedEngine{}, "p")

	_, err := runner.Run(ctx, &Suite{Tests: []Test{{Question: "q"}}})

	require.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Reports
// =============================================================================

func TestRunner_WriteReportNamesFileByStart(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	runner := NewRunner(&scriptedEngine{}, "p", WithClock(func() time.Time { return fixed }))
	suite := &Suite{Name: "demo", Tests: []Test{{Question: "q", IdealAnswer: "a"}}}

	rep, err := runner.Run(context.Background(), suite)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := runner.WriteReport(dir, rep)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eval_20240102_150405.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "demo", stored.Suite)
	assert.Len(t, stored.Results, 1)
}

func TestWriteTable_RendersRowsAndSummary(t *testing.T) {
	rep := &Report{
		Suite:   "demo",
		Project: "p",
		Results: []Result{
			{Question: "how does caching work", Confidence: 0.8, Scores: Scores{Overall: 9.17, Precision: 6.67, ContextUsage: 10, Hallucination: 10, Completeness: 10}},
			{Question: "broken one", Err: "boom", Scores: Scores{Overall: 1.25, ContextUsage: 3, Hallucination: 2}},
		},
		Summary: Summary{AvgOverall: 5.21, PassRate: 0.5},
	}
	var buf bytes.Buffer

	WriteTable(&buf, rep)

	out := buf.String()
	assert.Contains(t, out, "OVERALL")
	assert.Contains(t, out, "how does caching work")
	assert.Contains(t, out, "(failed)")
	assert.Contains(t, out, "Pass rate: 50.0%")
}
