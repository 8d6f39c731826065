package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForCLI_IncludesMessageHintAndCode(t *testing.T) {
	err := New(ErrCodeMissingCredential, "ANTHROPIC_API_KEY not set", nil).
		WithSuggestion("add it to .env")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: ANTHROPIC_API_KEY not set")
	assert.Contains(t, out, "Hint: add it to .env")
	assert.Contains(t, out, "Code: ERR_103_MISSING_CREDENTIAL")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("plain failure"))
	assert.Contains(t, out, "plain failure")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestFormatForCLI_NilReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatForLog_StructuredFields(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := New(ErrCodeRerankRequest, "rerank call failed", cause).
		WithDetail("endpoint", "http://localhost:9659")

	fields := FormatForLog(err)

	assert.Equal(t, ErrCodeRerankRequest, fields["error_code"])
	assert.Equal(t, "rerank call failed", fields["message"])
	assert.Equal(t, "NETWORK", fields["category"])
	assert.Equal(t, "dial tcp: refused", fields["cause"])
	assert.Equal(t, "http://localhost:9659", fields["detail_endpoint"])
}

func TestFormatForLog_PlainError(t *testing.T) {
	fields := FormatForLog(errors.New("oops"))
	assert.Equal(t, "oops", fields["error"])
}

func TestFormatForLog_Nil(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
