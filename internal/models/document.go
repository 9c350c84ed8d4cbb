package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies how a source file contributes pages to a merge.
type Format string

const (
	FormatPaged       Format = "PAGED"
	FormatWordLegacy  Format = "WORD_LEGACY"
	FormatWordModern  Format = "WORD_MODERN"
	FormatUnsupported Format = ""
)

// FormatForPath maps a file extension (case-insensitive) to a Format.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPaged
	case ".doc":
		return FormatWordLegacy
	case ".docx":
		return FormatWordModern
	}
	return FormatUnsupported
}

// NeedsConversion reports whether the format must go through the converter.
func (f Format) NeedsConversion() bool {
	return f == FormatWordLegacy || f == FormatWordModern
}

// Status is the processing state of a Document.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConverting  Status = "CONVERTING"
	StatusRecognizing Status = "RECOGNIZING"
	StatusMerged      Status = "MERGED"
	StatusFailed      Status = "FAILED"
	StatusSkipped     Status = "SKIPPED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusFailed || s == StatusSkipped
}

var allowedTransitions = map[Status][]Status{
	StatusPending:     {StatusConverting, StatusRecognizing, StatusMerged, StatusFailed, StatusSkipped},
	StatusConverting:  {StatusRecognizing, StatusMerged, StatusFailed, StatusSkipped},
	StatusRecognizing: {StatusMerged, StatusFailed, StatusSkipped},
}

// OCRStatus records what the recognition stage decided for a document.
type OCRStatus string

const (
	OCRNotNeeded OCRStatus = "not_needed"
	OCRRequired  OCRStatus = "required"
	OCRCompleted OCRStatus = "completed"
	OCRFailed    OCRStatus = "failed"
)

// Document describes one input file as it moves through the merge pipeline.
// It is owned by a single merge run and is never persisted.
type Document struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Index      int       `json:"index"`

	PageCount *int      `json:"pageCount,omitempty"`
	HasText   *bool     `json:"hasText,omitempty"`
	OCRStatus OCRStatus `json:"ocrStatus,omitempty"`
	Error     string    `json:"error,omitempty"`

	format Format
	status Status
}

// NewDocument stats path and builds a PENDING descriptor. The format is
// fixed here from the extension.
func NewDocument(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	format := FormatForPath(abs)
	if format == FormatUnsupported {
		return nil, &ValidationError{Field: "document", Value: abs, Msg: fmt.Sprintf("unsupported file type: %s", filepath.Ext(abs))}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ReadError{Path: abs, Err: err}
	}
	if info.IsDir() {
		return nil, &ValidationError{Field: "document", Value: abs, Msg: "path is not a file"}
	}
	return &Document{
		Path:       abs,
		Name:       info.Name(),
		SizeBytes:  info.Size(),
		CreatedAt:  info.ModTime(), // os.FileInfo has no portable birth time
		ModifiedAt: info.ModTime(),
		format:     format,
		status:     StatusPending,
	}, nil
}

func (d *Document) Format() Format { return d.format }

func (d *Document) Status() Status { return d.status }

// Transition moves the document to next, rejecting any move that is not
// forward along PENDING -> CONVERTING -> RECOGNIZING -> terminal.
func (d *Document) Transition(next Status) error {
	if d.status == next && !next.Terminal() {
		return nil
	}
	for _, s := range allowedTransitions[d.status] {
		if s == next {
			d.status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, d.Name, d.status, next)
}

// Fail marks the document FAILED and records err.
func (d *Document) Fail(err error) error {
	if err != nil {
		d.Error = err.Error()
	}
	return d.Transition(StatusFailed)
}

// SetPageCount records the number of pages contributed by the document.
func (d *Document) SetPageCount(n int) { d.PageCount = &n }

// SetHasText records the outcome of text-presence classification.
func (d *Document) SetHasText(v bool) { d.HasText = &v }

// Pages returns the page count or zero when it is unknown.
func (d *Document) Pages() int {
	if d.PageCount == nil {
		return 0
	}
	return *d.PageCount
}

// SizeMB is the file size in megabytes.
func (d *Document) SizeMB() float64 {
	return float64(d.SizeBytes) / (1024 * 1024)
}

// Stem is the display name without its extension.
func (d *Document) Stem() string {
	return strings.TrimSuffix(d.Name, filepath.Ext(d.Name))
}

// MarshalJSON includes the read-only format and status.
func (d *Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return json.Marshal(struct {
		*plain
		Format Format `json:"format"`
		Status Status `json:"status"`
	}{(*plain)(d), d.format, d.status})
}
