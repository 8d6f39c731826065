// Package errors provides structured error handling for ragweaver.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (cache, logs, index files)
//   - 3XX: Network errors (LLM, embedder, cross-encoder services)
//   - 4XX: Validation errors
//   - 5XX: Retriever errors (absorbed by the orchestrator)
//   - 6XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryRetriever indicates a retrieval source failure. These are
	// absorbed by the orchestrator and never abort a query.
	CategoryRetriever Category = "RETRIEVER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingCredential = "ERR_103_MISSING_CREDENTIAL"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCacheIO       = "ERR_202_CACHE_IO"
	ErrCodeLogIO         = "ERR_203_LOG_IO"
	ErrCodeIndexCorrupt  = "ERR_204_INDEX_CORRUPT"
	ErrCodeIndexIO       = "ERR_205_INDEX_IO"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeLLMRequest         = "ERR_303_LLM_REQUEST"
	ErrCodeEmbedRequest       = "ERR_304_EMBED_REQUEST"
	ErrCodeRerankRequest      = "ERR_305_RERANK_REQUEST"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidPath  = "ERR_403_INVALID_PATH"
	ErrCodeBadSuite     = "ERR_404_BAD_SUITE"

	// Retriever errors (500-599)
	ErrCodeRetrieverTimeout     = "ERR_501_RETRIEVER_TIMEOUT"
	ErrCodeRetrieverUnavailable = "ERR_502_RETRIEVER_UNAVAILABLE"
	ErrCodeRetrieverGarbled     = "ERR_503_RETRIEVER_GARBLED"

	// Internal errors (600-699)
	ErrCodeInternal       = "ERR_601_INTERNAL"
	ErrCodeScoreMismatch  = "ERR_602_SCORE_LENGTH_MISMATCH"
	ErrCodePipelineStage  = "ERR_603_PIPELINE_STAGE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" in "ERR_101_CONFIG_NOT_FOUND".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '5':
		return CategoryRetriever
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeMissingCredential, ErrCodeConfigInvalid, ErrCodeIndexCorrupt:
		return SeverityFatal
	}

	// Retriever failures and retryable network errors degrade, not abort.
	if categoryFromCode(code) == CategoryRetriever || isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeLLMRequest, ErrCodeEmbedRequest:
		return true
	default:
		return false
	}
}
