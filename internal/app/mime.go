package app

import (
	"log"
	"mime"
)

const (
	// MimeXLSX is the content type of spreadsheet downloads.
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// MimePDF is the content type of rendered documents and bundles.
	MimePDF = "application/pdf"
)

func init() {
	ensureMimeType(".xlsx", MimeXLSX)
	ensureMimeType(".pdf", MimePDF)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
