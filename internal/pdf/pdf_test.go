package pdf

import (
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/docmerge/internal/pdf/pdftest"
)

func TestPageCount(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.Write(t, filepath.Join(dir, "three.pdf"), "one", "two", "three")

	n, err := PageCount(path)
	if err != nil {
		t.Fatalf("PageCount returned error: %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount = %d, want 3", n)
	}

	if _, err := PageCount(pdftest.WriteCorrupt(t, filepath.Join(dir, "bad.pdf"))); err == nil {
		t.Error("expected an error for a corrupt file")
	}
}

func TestMergeOptimizeAndBookmarks(t *testing.T) {
	dir := t.TempDir()
	a := pdftest.Write(t, filepath.Join(dir, "a.pdf"), "alpha")
	b := pdftest.Write(t, filepath.Join(dir, "b.pdf"), "beta one", "beta two")

	merged := filepath.Join(dir, "merged.pdf")
	if err := Merge([]string{a, b}, merged); err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if n, err := PageCount(merged); err != nil || n != 3 {
		t.Fatalf("merged PageCount = %d, %v; want 3", n, err)
	}

	optimized := filepath.Join(dir, "optimized.pdf")
	if err := Optimize(merged, optimized); err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}

	marked := filepath.Join(dir, "marked.pdf")
	if err := AddBookmarks(optimized, marked, []Bookmark{{Title: "a", Page: 1}, {Title: "b", Page: 2}}); err != nil {
		t.Fatalf("AddBookmarks returned error: %v", err)
	}
	if n, err := PageCount(marked); err != nil || n != 3 {
		t.Errorf("bookmarked PageCount = %d, %v; want 3", n, err)
	}
}

func TestMergeNoInputs(t *testing.T) {
	if err := Merge(nil, filepath.Join(t.TempDir(), "out.pdf")); err == nil {
		t.Fatal("expected an error when merging nothing")
	}
}

func TestWriteAndReadInfo(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, filepath.Join(dir, "in.pdf"), "hello")
	out := filepath.Join(dir, "out.pdf")

	want := Info{Title: "Combined PDF - 2 documents", Subject: "Combined from: a.pdf, b (1).docx", Creator: "docmerge"}
	if err := WriteInfo(in, out, want); err != nil {
		t.Fatalf("WriteInfo returned error: %v", err)
	}
	got, err := ReadInfo(out)
	if err != nil {
		t.Fatalf("ReadInfo returned error: %v", err)
	}
	if got.Title != want.Title || got.Subject != want.Subject || got.Creator != want.Creator {
		t.Errorf("ReadInfo = %+v, want %+v", got, want)
	}
}

func TestWriteInfoNonASCII(t *testing.T) {
	dir := t.TempDir()
	in := pdftest.Write(t, filepath.Join(dir, "in.pdf"), "hello")
	out := filepath.Join(dir, "out.pdf")

	subject := `Combined from: résumé.pdf, 日本語.docx, a (1).pdf, back\slash.pdf`
	if err := WriteInfo(in, out, Info{Subject: subject}); err != nil {
		t.Fatalf("WriteInfo returned error: %v", err)
	}
	got, err := ReadInfo(out)
	if err != nil {
		t.Fatalf("ReadInfo returned error: %v", err)
	}
	if got.Subject != subject {
		t.Errorf("Subject = %q, want %q", got.Subject, subject)
	}
}

func TestReadInfoExisting(t *testing.T) {
	path := pdftest.WriteWithInfo(t, filepath.Join(t.TempDir(), "info.pdf"), map[string]string{"Keywords": "alpha, beta"}, "x")
	got, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("ReadInfo returned error: %v", err)
	}
	if got.Keywords != "alpha, beta" {
		t.Errorf("Keywords = %q", got.Keywords)
	}
}

func TestReadInfoMissingFile(t *testing.T) {
	if _, err := ReadInfo(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestHasText(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		pages    []string
		maxPages int
		want     bool
	}{
		{"text on first page", []string{"Hello world"}, 3, true},
		{"text on third page", []string{"", "", "late text"}, 3, true},
		{"text beyond sample", []string{"", "", "", "too late"}, 3, false},
		{"image only", []string{"", ""}, 3, false},
		{"whitespace only", []string{"   "}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := pdftest.Write(t, filepath.Join(dir, tt.name+".pdf"), tt.pages...)
			got, err := HasText(path, tt.maxPages)
			if err != nil {
				t.Fatalf("HasText returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasText = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasTextCorrupt(t *testing.T) {
	path := pdftest.WriteCorrupt(t, filepath.Join(t.TempDir(), "bad.pdf"))
	if _, err := HasText(path, 3); err == nil {
		t.Fatal("expected an error for a corrupt file")
	}
}
