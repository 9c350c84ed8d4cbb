package services

import (
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/pdf"
)

// TextPresence is the outcome of sampling a document for extractable text.
type TextPresence int

const (
	TextUnknown TextPresence = iota
	TextPresent
	TextAbsent
)

func (p TextPresence) String() string {
	switch p {
	case TextPresent:
		return "has_text"
	case TextAbsent:
		return "no_text"
	}
	return "unknown"
}

// DefaultSamplePages bounds how many leading pages are inspected.
const DefaultSamplePages = 3

// Classifier decides whether a paginated document already carries text.
// Only the first SamplePages pages are inspected, so a document whose text
// starts later is reported as TextAbsent.
type Classifier struct {
	SamplePages int
}

// Classify never modifies path. TextUnknown is always returned together
// with a *models.ReadError.
func (c Classifier) Classify(path string) (TextPresence, error) {
	n := c.SamplePages
	if n <= 0 {
		n = DefaultSamplePages
	}
	has, err := pdf.HasText(path, n)
	if err != nil {
		return TextUnknown, &models.ReadError{Path: path, Err: err}
	}
	if has {
		return TextPresent, nil
	}
	return TextAbsent, nil
}
