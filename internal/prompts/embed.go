package prompts

import (
	"embed"
	"io/fs"
)

// Extraction and review templates ride along in the binary; PROMPT_DIR
// overrides individual files at load time.
//
//go:embed templates/*.txt.tmpl
var templatesFS embed.FS

// FS exposes the embedded template tree rooted at templates/.
func FS() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return templatesFS
	}
	return sub
}
