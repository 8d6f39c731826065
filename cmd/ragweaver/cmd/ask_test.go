package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
)

func askJSON(t *testing.T, root, question string) rag.RunRecord {
	t.Helper()
	output, err := runCLI(t, "ask", "--json", "--project-root", root, question)
	require.NoError(t, err)

	var rec rag.RunRecord
	require.NoError(t, json.Unmarshal([]byte(output), &rec))
	return rec
}

func TestAskCmd_AnswersFromIndexedProject(t *testing.T) {
	// Given: an indexed offline project
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)
	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)

	// When: asking about content the docs cover
	rec := askJSON(t, root, "how are unchanged files skipped by content hash?")

	// Then: the record carries a grounded answer
	assert.Equal(t, "demo", rec.Project)
	assert.NotEmpty(t, rec.Answer)
	assert.False(t, rec.FromCache)
	assert.Positive(t, rec.Retrieved)
	assert.Positive(t, rec.Reranked)

	_, err = time.Parse(time.RFC3339, rec.Timestamp)
	assert.NoError(t, err, "timestamp should be RFC3339")
}

func TestAskCmd_RepeatHitsCache(t *testing.T) {
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)
	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)

	question := "how are unchanged files skipped by content hash?"
	first := askJSON(t, root, question)
	second := askJSON(t, root, question)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache, "repeat question should come from the cache")
	assert.Equal(t, first.Answer, second.Answer)
}

func TestAskCmd_EmptyKnowledgeBase_ReportsNoInformation(t *testing.T) {
	// Given: a configured project that was never indexed
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)

	// When: asking before any update has run
	rec := askJSON(t, root, "how does the ingest pipeline deduplicate files?")

	// Then: the engine reports the empty knowledge base instead of guessing
	assert.Equal(t, rag.NoInformationAnswer, rec.Answer)
	assert.Zero(t, rec.Retrieved)
}

func TestAskCmd_HumanOutputHasConfidenceFooter(t *testing.T) {
	isolateCLIEnv(t)
	root := seedAnswerableProject(t)
	_, err := runCLI(t, "update", "--no-tui", "--project-root", root)
	require.NoError(t, err)

	output, err := runCLI(t, "ask", "--project-root", root, "how are unchanged files skipped?")

	require.NoError(t, err)
	assert.Contains(t, output, "confidence:")
}
