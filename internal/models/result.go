package models

import (
	"time"
)

// ErrorRecord is one structured failure captured during a merge run.
type ErrorRecord struct {
	Document string    `json:"document"`
	Stage    string    `json:"stage"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// MergeResult is the aggregate outcome of one merge run.
type MergeResult struct {
	RunID               string        `json:"runId"`
	OutputPath          string        `json:"outputPath"`
	TotalDocuments      int           `json:"totalDocuments"`
	ProcessedDocuments  int           `json:"processedDocuments"`
	FailedDocuments     int           `json:"failedDocuments"`
	SkippedDocuments    int           `json:"skippedDocuments"`
	TotalPages          int           `json:"totalPages"`
	RecognizedDocuments int           `json:"recognizedDocuments"`
	Duration            time.Duration `json:"duration"`
	Documents           []*Document   `json:"documents"`
	Warnings            []string      `json:"warnings,omitempty"`
	Errors              []ErrorRecord `json:"errors,omitempty"`
}

// AddError records a failure against a document for stage.
func (r *MergeResult) AddError(document, stage string, err error) {
	r.Errors = append(r.Errors, ErrorRecord{
		Document: document,
		Stage:    stage,
		Kind:     ErrorKind(err),
		Message:  err.Error(),
		Time:     time.Now(),
	})
}

func (r *MergeResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Finalize recomputes the counters from the descriptors.
func (r *MergeResult) Finalize() {
	r.TotalDocuments = len(r.Documents)
	r.ProcessedDocuments, r.FailedDocuments, r.SkippedDocuments, r.TotalPages = 0, 0, 0, 0
	for _, d := range r.Documents {
		switch d.Status() {
		case StatusMerged:
			r.ProcessedDocuments++
			r.TotalPages += d.Pages()
		case StatusFailed:
			r.FailedDocuments++
		case StatusSkipped:
			r.SkippedDocuments++
		}
	}
}

// Complete reports whether every descriptor reached a terminal status.
func (r *MergeResult) Complete() bool {
	for _, d := range r.Documents {
		if !d.Status().Terminal() {
			return false
		}
	}
	return true
}

// SuccessRate is the percentage of documents that made it into the output.
func (r *MergeResult) SuccessRate() float64 {
	if r.TotalDocuments == 0 {
		return 0
	}
	return float64(r.ProcessedDocuments) / float64(r.TotalDocuments) * 100
}

func (r *MergeResult) HasErrors() bool {
	return r.FailedDocuments > 0 || len(r.Errors) > 0
}

// FailedFiles returns the display names of FAILED documents in catalog order.
func (r *MergeResult) FailedFiles() []string {
	return r.namesWithStatus(StatusFailed)
}

// ProcessedFiles returns the display names of MERGED documents in catalog order.
func (r *MergeResult) ProcessedFiles() []string {
	return r.namesWithStatus(StatusMerged)
}

func (r *MergeResult) namesWithStatus(s Status) []string {
	var names []string
	for _, d := range r.Documents {
		if d.Status() == s {
			names = append(names, d.Name)
		}
	}
	return names
}

// Provenance is the list of source names recovered from a merged document.
// Found is false when no candidate field carried a provenance payload, which
// is distinct from a payload listing zero names.
type Provenance struct {
	Names []string `json:"names"`
	Field string   `json:"field,omitempty"`
	Found bool     `json:"found"`
}

// VerificationState summarizes a VerificationReport.
type VerificationState string

const (
	VerificationVerified     VerificationState = "verified"
	VerificationMismatch     VerificationState = "mismatch"
	VerificationNoProvenance VerificationState = "no_provenance"
	VerificationUnreadable   VerificationState = "unreadable"
)

// VerificationReport compares a directory's current file set against the
// provenance recovered from a merged document.
type VerificationReport struct {
	PDFPath         string            `json:"pdfPath"`
	SourceDir       string            `json:"sourceDir"`
	Expected        []string          `json:"expected"`
	Found           []string          `json:"found"`
	Missing         []string          `json:"missing"`
	Extra           []string          `json:"extra"`
	PageCount       int               `json:"pageCount"`
	ProvenanceField string            `json:"provenanceField,omitempty"`
	ProvenanceFound bool              `json:"provenanceFound"`
	IsValid         bool              `json:"isValid"`
	State           VerificationState `json:"state"`
}

// MatchPercentage is |expected ∩ found| / |expected| * 100, or 100 when
// nothing is expected.
func (r *VerificationReport) MatchPercentage() float64 {
	if len(r.Expected) == 0 {
		return 100
	}
	found := make(map[string]struct{}, len(r.Found))
	for _, n := range r.Found {
		found[n] = struct{}{}
	}
	matched := 0
	for _, n := range r.Expected {
		if _, ok := found[n]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(r.Expected)) * 100
}

// MergeRecord is the persisted summary of a run, stored in Firestore by the
// publisher and in the local history ledger.
type MergeRecord struct {
	RunID              string    `firestore:"runId,omitempty" json:"runId"`
	Source             string    `firestore:"source,omitempty" json:"source"`
	OutputPath         string    `firestore:"outputPath,omitempty" json:"outputPath"`
	OutputURI          string    `firestore:"outputUri,omitempty" json:"outputUri,omitempty"`
	FileHash           string    `firestore:"fileHash,omitempty" json:"fileHash,omitempty"`
	Status             string    `firestore:"status,omitempty" json:"status"`
	ErrorDetails       string    `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	TotalDocuments     int       `firestore:"totalDocuments" json:"totalDocuments"`
	ProcessedDocuments int       `firestore:"processedDocuments" json:"processedDocuments"`
	FailedDocuments    int       `firestore:"failedDocuments" json:"failedDocuments"`
	SkippedDocuments   int       `firestore:"skippedDocuments" json:"skippedDocuments"`
	PageCount          int       `firestore:"pageCount" json:"pageCount"`
	Sources            []string  `firestore:"sources,omitempty" json:"sources,omitempty"`
	DurationMillis     int64     `firestore:"durationMillis" json:"durationMillis"`
	WorkflowExecution  string    `firestore:"workflowExecutionId,omitempty" json:"workflowExecutionId,omitempty"`
	CreatedAt          time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
}

// Record statuses.
const (
	RecordComplete   = "COMPLETE"
	RecordIncomplete = "INCOMPLETE"
	RecordFailed     = "FAILED"
)

// NewMergeRecord summarizes r. source describes where the inputs came from.
func NewMergeRecord(source string, r *MergeResult) MergeRecord {
	status := RecordComplete
	if r.FailedDocuments > 0 || r.SkippedDocuments > 0 {
		status = RecordIncomplete
	}
	return MergeRecord{
		RunID:              r.RunID,
		Source:             source,
		OutputPath:         r.OutputPath,
		Status:             status,
		TotalDocuments:     r.TotalDocuments,
		ProcessedDocuments: r.ProcessedDocuments,
		FailedDocuments:    r.FailedDocuments,
		SkippedDocuments:   r.SkippedDocuments,
		PageCount:          r.TotalPages,
		Sources:            r.ProcessedFiles(),
		DurationMillis:     r.Duration.Milliseconds(),
		CreatedAt:          time.Now().UTC(),
	}
}

// DocumentCheck is the dry-run inspection of one catalogued document.
type DocumentCheck struct {
	Name            string  `json:"name"`
	Format          Format  `json:"format"`
	SizeMB          float64 `json:"sizeMB"`
	Pages           int     `json:"pages"`
	Text            string  `json:"text"`
	NeedsConversion bool    `json:"needsConversion"`
	NeedsOCR        bool    `json:"needsOcr"`
	Error           string  `json:"error,omitempty"`
}

// CheckReport summarizes what a merge of a directory would do.
type CheckReport struct {
	Directory      string          `json:"directory"`
	Documents      []DocumentCheck `json:"documents"`
	TotalPages     int             `json:"totalPages"`
	NeedConversion int             `json:"needConversion"`
	NeedOCR        int             `json:"needOcr"`
	Unreadable     int             `json:"unreadable"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// DependencyStatus reports whether an external tool is installed.
type DependencyStatus struct {
	Name        string `json:"name"`
	Purpose     string `json:"purpose"`
	Required    bool   `json:"required"`
	Found       bool   `json:"found"`
	Path        string `json:"path,omitempty"`
	InstallHint string `json:"installHint,omitempty"`
}
