// Package export renders the compliance ledger as PDF or DOCX.
package export

import (
	"context"
	"errors"

	"compliance/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatPDF, FormatDOCX, FormatHTML:
		return Format(value), true
	default:
		return "", false
	}
}

// Request contains parameters for an export operation
type Request struct {
	Format Format
	// Department narrows the ledger to one department. Empty means all.
	Department store.Department
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Converter turns the rendered ledger HTML into a binary document.
type Converter func(ctx context.Context, html, title string) (*Result, error)

var (
	// ErrNotPermitted indicates the viewer's role cannot export the ledger.
	ErrNotPermitted = errors.New("export not permitted")
	// ErrUnsupportedFormat indicates a format other than pdf, docx or html.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
