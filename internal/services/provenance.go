package services

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/pdf"
)

const (
	// ProvenancePrefix marks a metadata value that lists merged sources.
	ProvenancePrefix = "Combined from: "
	// ProvenanceDelimiter separates the source names.
	ProvenanceDelimiter = ", "
	// ToolTag identifies documents produced by docmerge.
	ToolTag = "docmerge"
)

// Candidate info fields, scanned in this order when reading provenance.
const (
	FieldSubject  = "Subject"
	FieldKeywords = "Keywords"
	FieldProducer = "Producer"
)

var provenanceFields = []string{FieldSubject, FieldKeywords, FieldProducer}

// EncodeProvenance renders names as a provenance payload.
func EncodeProvenance(names []string) string {
	return ProvenancePrefix + strings.Join(names, ProvenanceDelimiter)
}

// DecodeProvenance parses value when it carries the provenance prefix.
func DecodeProvenance(value string) ([]string, bool) {
	idx := strings.Index(value, strings.TrimSpace(ProvenancePrefix))
	if idx < 0 {
		return nil, false
	}
	payload := strings.TrimSpace(value[idx+len(strings.TrimSpace(ProvenancePrefix)):])
	names := []string{}
	if payload == "" {
		return names, true
	}
	for _, part := range strings.Split(payload, ProvenanceDelimiter) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names, true
}

// WriteProvenance copies in to out with names recorded in the Subject field,
// a descriptive title and the tool tag as creator and producer.
func WriteProvenance(in, out string, names []string) error {
	info := pdf.Info{
		Title:    fmt.Sprintf("Combined PDF - %d documents", len(names)),
		Subject:  EncodeProvenance(names),
		Creator:  ToolTag,
		Producer: ToolTag,
	}
	if err := pdf.WriteInfo(in, out, info); err != nil {
		return fmt.Errorf("failed to write provenance: %w", err)
	}
	return nil
}

// ReadProvenance recovers the source names from the document at path. It
// never fails: an unreadable document or one without a payload yields a
// Provenance with Found false.
func ReadProvenance(path string) models.Provenance {
	info, err := pdf.ReadInfo(path)
	if err != nil {
		return models.Provenance{}
	}
	values := map[string]string{
		FieldSubject:  info.Subject,
		FieldKeywords: info.Keywords,
		FieldProducer: info.Producer,
	}
	for _, field := range provenanceFields {
		if names, ok := DecodeProvenance(values[field]); ok {
			return models.Provenance{Names: names, Field: field, Found: true}
		}
	}
	return models.Provenance{}
}
