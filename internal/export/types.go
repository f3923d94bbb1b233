// Package export renders the parenting plan to HTML, PDF and DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "":
		return FormatPDF, nil
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(value), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	Format      Format
	GeneratedBy string
	Upload      bool
}

// Plan is the snapshot of every section that goes into an export.
type Plan struct {
	ID         string
	Title      string
	PartyAName string
	PartyBName string
	Completion float64
	Sections   []Section
}

// Section is one plan section with its review state.
type Section struct {
	ID           string
	Title        string
	Content      string
	Status       string
	PartyA       bool
	PartyB       bool
	VersionCount int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// URL is set when the export was uploaded to object storage.
	URL string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrStorageNotConfigured  = errors.New("export storage not configured")
)

const exportTimeout = 30 * time.Second
