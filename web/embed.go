package web

import "embed"

// Templates holds the printable document templates rendered to PDF.
//
//go:embed templates/documents/*.html
var Templates embed.FS
