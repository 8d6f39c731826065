// Package preflight diagnoses the environment before a query or
// ingestion run: disk space and write permissions for the data
// directory, file descriptor headroom for the index stores,
// reachability of the configured LLM and embedding providers, and
// presence of the optional retrieval components (ripgrep, symbol
// cache, entity graph, memory agent).
//
// Checks are split into required and advisory. A required failure
// means the engine cannot run at all; advisory failures only degrade
// retrieval, because every optional component has a fallback.
package preflight
