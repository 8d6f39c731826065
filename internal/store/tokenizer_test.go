package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================
// Code Tokenization
// ============================================================

func TestTokenizeCode_CamelCase(t *testing.T) {
	// Given a camelCase identifier
	// When tokenized
	tokens := TokenizeCode("getUserById")

	// Then it splits into lowercase parts, dropping single characters
	assert.Equal(t, []string{"get", "user", "by", "id"}, tokens)
}

func TestTokenizeCode_SnakeCase(t *testing.T) {
	// Given a snake_case identifier
	tokens := TokenizeCode("parse_config_file")

	// Then each segment becomes a token
	assert.Equal(t, []string{"parse", "config", "file"}, tokens)
}

func TestTokenizeCode_AcronymRuns(t *testing.T) {
	// Given identifiers with acronym runs
	tokens := TokenizeCode("parseHTTPRequest HTTPHandler")

	// Then acronyms stay together
	assert.Equal(t, []string{"parse", "http", "request", "http", "handler"}, tokens)
}

func TestTokenizeCode_MixedTextAndPunctuation(t *testing.T) {
	// Given prose mixed with code and punctuation
	tokens := TokenizeCode("call NewServer(cfg); see server.go")

	// Then words and identifier parts both surface
	assert.Equal(t, []string{"call", "new", "server", "cfg", "see", "server", "go"}, tokens)
}

func TestTokenizeCode_DropsShortTokens(t *testing.T) {
	// Given text with one-character fragments
	tokens := TokenizeCode("a b ok")

	// Then only tokens of two or more characters remain
	assert.Equal(t, []string{"ok"}, tokens)
}

func TestTokenizeCode_Empty(t *testing.T) {
	assert.Empty(t, TokenizeCode(""))
	assert.Empty(t, TokenizeCode("   \n\t"))
}

// ============================================================
// Identifier Splitting
// ============================================================

func TestSplitIdentifier_SnakeThenCamel(t *testing.T) {
	// Given a mixed snake and camel identifier
	parts := SplitIdentifier("http_getUserById")

	// Then both conventions split
	assert.Equal(t, []string{"http", "get", "User", "By", "Id"}, parts)
}

func TestSplitIdentifier_EmptySegments(t *testing.T) {
	// Given leading, trailing and doubled underscores
	parts := SplitIdentifier("__init__")

	// Then empty segments are skipped
	assert.Equal(t, []string{"init"}, parts)
}

func TestSplitIdentifier_PlainWord(t *testing.T) {
	assert.Equal(t, []string{"config"}, SplitIdentifier("config"))
}

// ============================================================
// Stop Words
// ============================================================

func TestFilterStopWords_DropsOnlyListed(t *testing.T) {
	// Given a stop word set built from the defaults
	stops := BuildStopWordMap(DefaultCodeStopWords)

	// When filtering a token stream
	kept := FilterStopWords([]string{"func", "parse", "return", "config"}, stops)

	// Then keywords disappear and content words remain
	assert.Equal(t, []string{"parse", "config"}, kept)
}

func TestBuildStopWordMap_CaseInsensitive(t *testing.T) {
	// Given mixed-case stop words
	stops := BuildStopWordMap([]string{"Func", "RETURN"})

	// Then lookups are lowercase
	kept := FilterStopWords([]string{"func", "return", "keep"}, stops)
	assert.Equal(t, []string{"keep"}, kept)
}
