package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/pdf"
	"github.com/Lllllllleong/docmerge/internal/pdf/pdftest"
)

func newTestConverter(fe *fakeExecutor, workers int) *Converter {
	cfg := config.Default().Conversion
	cfg.Command = "libreoffice"
	cfg.Workers = workers
	return NewConverter(cfg, NewToolRunner(fe, nil), nil)
}

func newDoc(t *testing.T, path string) *models.Document {
	t.Helper()
	doc, err := models.NewDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestConvert(t *testing.T) {
	fe := newFakeExecutor().with("libreoffice", fakeOffice(2))
	c := newTestConverter(fe, 1)
	doc := newDoc(t, writeFile(t, filepath.Join(t.TempDir(), "report.docx"), "word"))
	dest := t.TempDir()

	out, err := c.Convert(context.Background(), doc, dest)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if out != filepath.Join(dest, "report.pdf") {
		t.Errorf("output = %s", out)
	}
	n, err := pdf.PageCount(out)
	if err != nil || n != 2 {
		t.Errorf("PageCount = %d, %v", n, err)
	}

	args := fe.lastCall("libreoffice")
	if !strings.HasPrefix(args[0], "-env:UserInstallation=file://") {
		t.Errorf("missing private profile: %v", args)
	}
	if argAfter(args, "--convert-to") != "pdf" || argAfter(args, "--outdir") != dest {
		t.Errorf("unexpected args: %v", args)
	}
	if args[len(args)-1] != doc.Path {
		t.Errorf("source is not the last argument: %v", args)
	}
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	word := newDoc(t, writeFile(t, filepath.Join(dir, "broken.doc"), "x"))
	paged := newDoc(t, pdftest.Write(t, filepath.Join(dir, "a.pdf"), "text"))

	tests := []struct {
		name    string
		fe      *fakeExecutor
		doc     *models.Document
		wantDep bool
	}{
		{"tool missing", newFakeExecutor(), word, true},
		{"tool fails", newFakeExecutor().with("libreoffice", fakeOffice(1)), word, false},
		{"pdf needs no conversion", newFakeExecutor().with("libreoffice", fakeOffice(1)), paged, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestConverter(tt.fe, 1).Convert(context.Background(), tt.doc, t.TempDir())
			var cerr *models.ConversionError
			if !errors.As(err, &cerr) {
				t.Fatalf("got %v, want ConversionError", err)
			}
			var derr *models.DependencyError
			if got := errors.As(err, &derr); got != tt.wantDep {
				t.Errorf("DependencyError = %v, want %v", got, tt.wantDep)
			}
		})
	}
}

func TestConverterTool(t *testing.T) {
	tests := []struct {
		name    string
		command string
		goos    string
		tools   []string
		want    string
		wantErr bool
	}{
		{"auto prefers libreoffice", "auto", "linux", []string{"soffice", "libreoffice"}, "libreoffice", false},
		{"auto falls back to soffice", "auto", "darwin", []string{"soffice"}, "soffice", false},
		{"auto on windows uses word", "auto", "windows", []string{"powershell", "libreoffice"}, "powershell", false},
		{"explicit command", "soffice", "linux", []string{"soffice", "libreoffice"}, "soffice", false},
		{"nothing installed", "auto", "linux", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := newFakeExecutor()
			for _, tool := range tt.tools {
				fe.with(tool, fakeOffice(1))
			}
			c := NewConverter(config.ConversionConfig{Command: tt.command, Workers: 1}, NewToolRunner(fe, nil), nil)
			c.goos = tt.goos
			got, err := c.Tool()
			if tt.wantErr {
				var derr *models.DependencyError
				if !errors.As(err, &derr) {
					t.Fatalf("got %v, want DependencyError", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Tool() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestConvertWithWordAutomation(t *testing.T) {
	var script string
	fe := newFakeExecutor().with("powershell", func(ctx context.Context, args []string) ([]byte, error) {
		script = args[len(args)-1]
		// The script saves to the path quoted in SaveAs.
		start := strings.Index(script, "SaveAs([ref] '") + len("SaveAs([ref] '")
		end := strings.Index(script[start:], "'")
		pdftest.Write(t, script[start:start+end], "converted")
		return nil, nil
	})
	c := NewConverter(config.ConversionConfig{Command: "auto", Workers: 1}, NewToolRunner(fe, nil), nil)
	c.goos = "windows"
	doc := newDoc(t, writeFile(t, filepath.Join(t.TempDir(), "memo.doc"), "x"))

	out, err := c.Convert(context.Background(), doc, t.TempDir())
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if filepath.Base(out) != "memo.pdf" {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(script, "Word.Application") || !strings.Contains(script, ", [ref] 17)") {
		t.Errorf("unexpected script: %s", script)
	}
}

func TestConvertBatch(t *testing.T) {
	src := t.TempDir()
	var docs []*models.Document
	for i, name := range []string{"a.docx", "b.pdf", "c.doc", "d.docx", "e.docx"} {
		var path string
		if strings.HasSuffix(name, ".pdf") {
			path = pdftest.Write(t, filepath.Join(src, name), "paged")
		} else {
			path = writeFile(t, filepath.Join(src, name), "word")
		}
		d := newDoc(t, path)
		d.Index = i
		docs = append(docs, d)
	}

	fe := newFakeExecutor().with("libreoffice", fakeOffice(1))
	results, err := newTestConverter(fe, 3).ConvertBatch(context.Background(), docs, t.TempDir(), false)
	if err != nil {
		t.Fatalf("ConvertBatch returned error: %v", err)
	}
	if fe.callCount("libreoffice") != 4 {
		t.Errorf("converter ran %d times, want 4", fe.callCount("libreoffice"))
	}
	for i, r := range results {
		if r.Doc != docs[i] || r.Err != nil {
			t.Fatalf("result %d = %+v", i, r)
		}
		if docs[i].Format() == models.FormatPaged {
			if r.Path != docs[i].Path {
				t.Errorf("pdf was not routed through: %s", r.Path)
			}
			if docs[i].Status() != models.StatusPending {
				t.Errorf("pdf status = %s", docs[i].Status())
			}
			continue
		}
		if filepath.Base(r.Path) != docs[i].Stem()+".pdf" {
			t.Errorf("result %d path = %s", i, r.Path)
		}
		if docs[i].Status() != models.StatusConverting {
			t.Errorf("%s status = %s", docs[i].Name, docs[i].Status())
		}
	}
}

func TestConvertBatchSameStem(t *testing.T) {
	src := t.TempDir()
	a := newDoc(t, writeFile(t, filepath.Join(src, "notes.doc"), "x"))
	b := newDoc(t, writeFile(t, filepath.Join(src, "notes.docx"), "x"))
	a.Index, b.Index = 0, 1

	fe := newFakeExecutor().with("libreoffice", fakeOffice(1))
	results, err := newTestConverter(fe, 2).ConvertBatch(context.Background(), []*models.Document{a, b}, t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Path == results[1].Path {
		t.Errorf("conversions share output %s", results[0].Path)
	}
}

func TestConvertBatchFailures(t *testing.T) {
	src := t.TempDir()
	var docs []*models.Document
	for i, name := range []string{"a.docx", "broken.docx", "c.docx"} {
		d := newDoc(t, writeFile(t, filepath.Join(src, name), "x"))
		d.Index = i
		docs = append(docs, d)
	}

	t.Run("isolated", func(t *testing.T) {
		fe := newFakeExecutor().with("libreoffice", fakeOffice(1))
		results, err := newTestConverter(fe, 1).ConvertBatch(context.Background(), docs, t.TempDir(), false)
		if err != nil {
			t.Fatalf("ConvertBatch returned error: %v", err)
		}
		var cerr *models.ConversionError
		if !errors.As(results[1].Err, &cerr) {
			t.Errorf("broken result err = %v", results[1].Err)
		}
		if results[0].Err != nil || results[2].Err != nil {
			t.Errorf("healthy documents failed: %v, %v", results[0].Err, results[2].Err)
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		var fresh []*models.Document
		for _, d := range docs {
			nd := newDoc(t, d.Path)
			nd.Index = d.Index
			fresh = append(fresh, nd)
		}
		fe := newFakeExecutor().with("libreoffice", fakeOffice(1))
		_, err := newTestConverter(fe, 1).ConvertBatch(context.Background(), fresh, t.TempDir(), true)
		var cerr *models.ConversionError
		if !errors.As(err, &cerr) {
			t.Fatalf("got %v, want ConversionError", err)
		}
		if fe.callCount("libreoffice") != 2 {
			t.Errorf("converter ran %d times after a fail-fast failure", fe.callCount("libreoffice"))
		}
	})
}
