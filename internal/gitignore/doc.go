// Package gitignore matches paths against .gitignore-style patterns.
//
// The scanner and watcher use it to keep ignored files out of the
// knowledge base: generated output, vendored trees, and anything the
// project's own .gitignore files exclude. Supported syntax follows
// https://git-scm.com/docs/gitignore: wildcards (*, ?, **),
// directory-only patterns (build/), rooted patterns (/dist), negation
// (!keep.md), and nested ignore files scoped to their directory via
// the base argument of AddFromFile.
package gitignore
