// Package configs provides the embedded configuration template written by
// 'ragweaver init'.
//
// The template is embedded at build time so it ships with every
// distribution of the binary. It contains commented examples for all
// settings; defaults work without uncommenting anything. See
// internal/config for the load order (defaults, user config, project
// config, .env, RAG_* environment variables).
package configs

import _ "embed"

// ProjectConfigTemplate is the template for project-level configuration,
// written to .ragweaver/config.yaml by 'ragweaver init'. The init command
// substitutes the {{PROJECT}} and {{PROJECT_TYPE}} placeholders.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
