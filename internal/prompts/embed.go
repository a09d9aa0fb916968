// Package prompts provides the embedded example prompts and report templates,
// with user override support.
package prompts

import "embed"

//go:embed examples/*.md report/*.md
var embeddedFS embed.FS
