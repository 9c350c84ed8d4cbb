package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestDocument(t *testing.T, name string) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	doc, err := NewDocument(path)
	if err != nil {
		t.Fatalf("NewDocument(%s) returned error: %v", name, err)
	}
	return doc
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.pdf", FormatPaged},
		{"A.PDF", FormatPaged},
		{"report.doc", FormatWordLegacy},
		{"report.DocX", FormatWordModern},
		{"notes.txt", FormatUnsupported},
		{"noext", FormatUnsupported},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNewDocument(t *testing.T) {
	doc := newTestDocument(t, "Report.DOCX")
	if doc.Format() != FormatWordModern {
		t.Errorf("format = %s, want %s", doc.Format(), FormatWordModern)
	}
	if doc.Status() != StatusPending {
		t.Errorf("status = %s, want %s", doc.Status(), StatusPending)
	}
	if doc.Name != "Report.DOCX" || doc.Stem() != "Report" {
		t.Errorf("unexpected name/stem: %q/%q", doc.Name, doc.Stem())
	}
	if doc.SizeBytes != int64(len("content")) {
		t.Errorf("size = %d", doc.SizeBytes)
	}
	if !filepath.IsAbs(doc.Path) {
		t.Errorf("path %q is not absolute", doc.Path)
	}
}

func TestNewDocumentErrors(t *testing.T) {
	dir := t.TempDir()

	var verr *ValidationError
	if _, err := NewDocument(filepath.Join(dir, "x.txt")); !errors.As(err, &verr) {
		t.Errorf("unsupported extension: got %v, want ValidationError", err)
	}

	var rerr *ReadError
	if _, err := NewDocument(filepath.Join(dir, "missing.pdf")); !errors.As(err, &rerr) {
		t.Errorf("missing file: got %v, want ReadError", err)
	}

	sub := filepath.Join(dir, "folder.pdf")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDocument(sub); !errors.As(err, &verr) {
		t.Errorf("directory: got %v, want ValidationError", err)
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		path    []Status
		wantErr bool
	}{
		{"pending to merged", []Status{StatusMerged}, false},
		{"full pipeline", []Status{StatusConverting, StatusRecognizing, StatusMerged}, false},
		{"convert then skip", []Status{StatusConverting, StatusSkipped}, false},
		{"recognize then convert", []Status{StatusRecognizing, StatusConverting}, true},
		{"out of merged", []Status{StatusMerged, StatusFailed}, true},
		{"out of failed", []Status{StatusFailed, StatusMerged}, true},
		{"failed twice", []Status{StatusFailed, StatusFailed}, true},
		{"back to pending", []Status{StatusConverting, StatusPending}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newTestDocument(t, "a.pdf")
			var err error
			for _, s := range tt.path {
				if err = doc.Transition(s); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("got %v, want ErrInvalidTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Status() != tt.path[len(tt.path)-1] {
				t.Errorf("status = %s", doc.Status())
			}
		})
	}
}

func TestFailRecordsMessage(t *testing.T) {
	doc := newTestDocument(t, "a.doc")
	if err := doc.Fail(&ConversionError{Source: doc.Name, TargetFormat: "pdf", Err: errors.New("boom")}); err != nil {
		t.Fatal(err)
	}
	if doc.Status() != StatusFailed || doc.Error == "" {
		t.Errorf("got status %s error %q", doc.Status(), doc.Error)
	}
}

func TestMergeResultFinalize(t *testing.T) {
	a := newTestDocument(t, "a.pdf")
	b := newTestDocument(t, "b.pdf")
	c := newTestDocument(t, "c.pdf")
	a.SetPageCount(2)
	_ = a.Transition(StatusMerged)
	b.SetPageCount(5)
	_ = b.Transition(StatusMerged)
	_ = c.Fail(errors.New("bad"))

	r := &MergeResult{Documents: []*Document{a, b, c}}
	r.Finalize()

	if r.TotalDocuments != 3 || r.ProcessedDocuments != 2 || r.FailedDocuments != 1 || r.SkippedDocuments != 0 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if r.TotalPages != 7 {
		t.Errorf("total pages = %d, want 7", r.TotalPages)
	}
	if !r.Complete() {
		t.Error("expected run to be complete")
	}
	if got := r.FailedFiles(); len(got) != 1 || got[0] != "c.pdf" {
		t.Errorf("failed files = %v", got)
	}
	if got := r.SuccessRate(); got < 66.6 || got > 66.7 {
		t.Errorf("success rate = %f", got)
	}
}

func TestMatchPercentage(t *testing.T) {
	tests := []struct {
		expected, found []string
		want            float64
	}{
		{nil, nil, 100},
		{[]string{"a", "b"}, []string{"a", "b"}, 100},
		{[]string{"a", "b"}, []string{"a"}, 50},
		{[]string{"a", "b"}, []string{"c"}, 0},
		{[]string{"a", "b", "c", "d"}, []string{"a", "b", "c", "x"}, 75},
	}
	for _, tt := range tests {
		r := &VerificationReport{Expected: tt.expected, Found: tt.found}
		if got := r.MatchPercentage(); got != tt.want {
			t.Errorf("MatchPercentage(%v, %v) = %v, want %v", tt.expected, tt.found, got, tt.want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	wrappedDep := &ConversionError{Source: "a.doc", TargetFormat: "pdf", Err: &DependencyError{Dependency: "libreoffice"}}
	tests := []struct {
		err  error
		want string
	}{
		{wrappedDep, "dependency"},
		{&ConversionError{Err: ErrToolTimeout}, "conversion"},
		{&ReadError{Path: "x", Err: errors.New("eof")}, "read"},
		{&ValidationError{Msg: "bad", Err: &DirectoryError{Path: "d", Reason: "missing"}}, "directory"},
		{&ValidationError{Msg: "bad"}, "validation"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
