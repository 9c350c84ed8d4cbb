package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/pdf"
	"github.com/google/uuid"
)

// Pipeline stage names used in error records.
const (
	StageCatalog   = "catalog"
	StageConvert   = "convert"
	StageRecognize = "recognize"
	StageAssemble  = "assemble"
	StageMetadata  = "metadata"
	StagePersist   = "persist"
	StageState     = "state"
)

// Merger drives merge runs. The converter and recognizer pools are created
// once and shared by every run of the same Merger.
type Merger struct {
	cfg        *config.Config
	exec       Executor
	logger     *slog.Logger
	runner     *ToolRunner
	converter  *Converter
	recognizer *Recognizer
}

type MergerOption func(*Merger)

// WithExecutor replaces the runner of external tools.
func WithExecutor(e Executor) MergerOption {
	return func(m *Merger) { m.exec = e }
}

func WithLogger(l *slog.Logger) MergerOption {
	return func(m *Merger) { m.logger = l }
}

func NewMerger(cfg *config.Config, opts ...MergerOption) *Merger {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Merger{cfg: cfg, exec: OSExecutor{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.runner = NewToolRunner(m.exec, m.logger)
	m.converter = NewConverter(cfg.Conversion, m.runner, m.logger)
	m.recognizer = NewRecognizer(cfg.OCR, m.runner, m.logger)
	return m
}

// MergeDirectory merges the catalogued documents of dir into out.
//
// Invalid input fails with a *models.ValidationError before anything is
// written. A missing conversion tool fails with a *models.DependencyError.
// Failures while writing the output are a *models.MergeError. Per-document
// failures are recorded on the result. When an error is returned alongside
// a non-nil result, the result describes the progress made.
func (m *Merger) MergeDirectory(ctx context.Context, dir, out string) (*models.MergeResult, error) {
	if err := m.validateOutput(out); err != nil {
		return nil, err
	}
	catalog := NewCatalog(dir, CatalogOptionsFromConfig(m.cfg.Catalog))
	docs, err := catalog.Scan()
	if err != nil {
		return nil, &models.ValidationError{Field: "source_dir", Value: dir, Msg: err.Error(), Err: err}
	}

	var warnings []string
	if absOut, err := filepath.Abs(out); err == nil {
		kept := docs[:0]
		for _, d := range docs {
			if d.Path == absOut {
				warnings = append(warnings, fmt.Sprintf("excluding the output file %s from its own input", d.Name))
				continue
			}
			kept = append(kept, d)
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, &models.ValidationError{Field: "source_dir", Value: dir, Msg: fmt.Sprintf("No supported documents found in %s", dir)}
	}
	for i, d := range docs {
		d.Index = i
	}
	warnings = append(catalog.Warnings(), warnings...)
	return m.run(ctx, docs, out, warnings)
}

// MergeDocuments merges docs, in the given order, into out.
func (m *Merger) MergeDocuments(ctx context.Context, docs []*models.Document, out string) (*models.MergeResult, error) {
	if len(docs) == 0 {
		return nil, &models.ValidationError{Field: "documents", Msg: "No documents to merge"}
	}
	for i, d := range docs {
		if d == nil {
			return nil, &models.ValidationError{Field: "documents", Msg: fmt.Sprintf("document %d is nil", i)}
		}
		if d.Status() != models.StatusPending {
			return nil, &models.ValidationError{Field: "documents", Value: d.Name, Msg: "document was already processed"}
		}
		d.Index = i
	}
	if err := m.validateOutput(out); err != nil {
		return nil, err
	}
	return m.run(ctx, docs, out, nil)
}

func (m *Merger) validateOutput(out string) error {
	if out == "" {
		return &models.ValidationError{Field: "output", Msg: "output path is required"}
	}
	if !strings.EqualFold(filepath.Ext(out), ".pdf") {
		return &models.ValidationError{Field: "output", Value: out, Msg: "output file must have a .pdf extension"}
	}
	parent := filepath.Dir(out)
	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return &models.ValidationError{Field: "output", Value: out, Msg: "output directory does not exist", Err: err}
	}
	if info, err := os.Stat(out); err == nil {
		if info.IsDir() {
			return &models.ValidationError{Field: "output", Value: out, Msg: "output path is a directory"}
		}
		if !m.cfg.Output.Overwrite {
			return &models.ValidationError{Field: "output", Value: out, Msg: "output file already exists"}
		}
	}
	probe, err := os.CreateTemp(parent, ".docmerge-probe-*")
	if err != nil {
		return &models.ValidationError{Field: "output", Value: out, Msg: "output directory is not writable", Err: err}
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func (m *Merger) run(ctx context.Context, docs []*models.Document, out string, warnings []string) (*models.MergeResult, error) {
	start := time.Now()
	result := &models.MergeResult{
		RunID:      uuid.NewString(),
		OutputPath: out,
		Documents:  docs,
		Warnings:   warnings,
	}
	logCtx := m.logger.With("runId", result.RunID, "output", out)
	logCtx.Info("Starting merge run.", "documents", len(docs))
	finish := func() {
		result.Finalize()
		result.Duration = time.Since(start)
	}

	for _, d := range docs {
		if d.Format().NeedsConversion() {
			if _, err := m.converter.Tool(); err != nil {
				logCtx.Error("Conversion tool is not available.", "error", err)
				return nil, err
			}
			break
		}
	}

	workDir, err := os.MkdirTemp(m.cfg.Processing.TempDir, "docmerge-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)
	logCtx.Debug("Created temp directory.", "path", workDir)

	failFast := m.cfg.Processing.FailFast
	paths := make([]string, len(docs))

	converted, err := m.converter.ConvertBatch(ctx, docs, filepath.Join(workDir, "convert"), failFast)
	for i, r := range converted {
		if r.Err != nil {
			m.fail(logCtx, result, r.Doc, StageConvert, r.Err)
			continue
		}
		paths[i] = r.Path
	}
	if err != nil {
		finish()
		return result, err
	}

	if m.cfg.OCR.Enabled {
		var items []RecognitionItem
		var owners []int
		for i, d := range docs {
			if paths[i] != "" && !d.Status().Terminal() {
				items = append(items, RecognitionItem{Doc: d, Path: paths[i]})
				owners = append(owners, i)
			}
		}
		recognized, err := m.recognizer.ProcessBatch(ctx, items, filepath.Join(workDir, "ocr"), failFast)
		for k, r := range recognized {
			i := owners[k]
			if r.Recognized {
				result.RecognizedDocuments++
			}
			if r.Warning != "" {
				result.AddWarning(r.Warning)
			}
			if r.Err != nil {
				m.fail(logCtx, result, r.Doc, StageRecognize, r.Err)
				paths[i] = ""
				continue
			}
			paths[i] = r.Path
		}
		if err != nil {
			finish()
			return result, err
		}
	}

	if err := ctx.Err(); err != nil {
		finish()
		return result, err
	}

	// Assemble in catalog order. The page count probe isolates files the
	// merge would otherwise choke on.
	var inputs []string
	var included []*models.Document
	for i, d := range docs {
		if d.Status().Terminal() {
			continue
		}
		if paths[i] == "" {
			m.advance(logCtx, result, d, models.StatusSkipped)
			result.AddWarning(fmt.Sprintf("%s has no paginated form and was skipped", d.Name))
			continue
		}
		n, err := pdf.PageCount(paths[i])
		if err != nil {
			rerr := &models.ReadError{Path: d.Path, Err: err}
			m.fail(logCtx, result, d, StageAssemble, rerr)
			if failFast {
				finish()
				return result, rerr
			}
			continue
		}
		if n == 0 {
			m.advance(logCtx, result, d, models.StatusSkipped)
			result.AddWarning(fmt.Sprintf("%s has no pages and was skipped", d.Name))
			continue
		}
		d.SetPageCount(n)
		inputs = append(inputs, paths[i])
		included = append(included, d)
	}
	if len(included) == 0 {
		finish()
		return result, &models.MergeError{Msg: "no documents could be assembled"}
	}

	current := filepath.Join(workDir, "merged.pdf")
	if err := pdf.Merge(inputs, current); err != nil {
		finish()
		return result, &models.MergeError{Msg: "failed to assemble output", Err: err}
	}
	names := make([]string, len(included))
	for i, d := range included {
		m.advance(logCtx, result, d, models.StatusMerged)
		names[i] = d.Name
	}

	if m.cfg.Output.Compression {
		optimized := filepath.Join(workDir, "optimized.pdf")
		if err := pdf.Optimize(current, optimized); err != nil {
			logCtx.Warn("Compression failed, keeping the uncompressed output.", "error", err)
			result.AddWarning(fmt.Sprintf("compression failed: %v", err))
		} else {
			current = optimized
		}
	}

	if m.cfg.Output.Bookmarks {
		marks := make([]pdf.Bookmark, len(included))
		page := 1
		for i, d := range included {
			marks[i] = pdf.Bookmark{Title: d.Stem(), Page: page}
			page += d.Pages()
		}
		bookmarked := filepath.Join(workDir, "bookmarked.pdf")
		if err := pdf.AddBookmarks(current, bookmarked, marks); err != nil {
			logCtx.Warn("Failed to add bookmarks.", "error", err)
			result.AddWarning(fmt.Sprintf("bookmarks were not added: %v", err))
		} else {
			current = bookmarked
		}
	}

	if m.cfg.Output.AddMetadata {
		final := filepath.Join(workDir, "final.pdf")
		if err := WriteProvenance(current, final, names); err != nil {
			finish()
			result.AddError("", StageMetadata, err)
			return result, &models.MergeError{Msg: "failed to write provenance metadata", Processed: names, Err: err}
		}
		current = final
	}

	if err := ctx.Err(); err != nil {
		finish()
		return result, err
	}
	if err := persist(current, out); err != nil {
		finish()
		result.AddError("", StagePersist, err)
		return result, &models.MergeError{Msg: "failed to write output", Processed: names, Err: err}
	}

	finish()
	logCtx.Info("Merge run finished.",
		"processed", result.ProcessedDocuments,
		"failed", result.FailedDocuments,
		"skipped", result.SkippedDocuments,
		"pages", result.TotalPages,
		"recognized", result.RecognizedDocuments,
		"duration", result.Duration.String(),
	)
	return result, nil
}

func (m *Merger) fail(logCtx *slog.Logger, result *models.MergeResult, doc *models.Document, stage string, err error) {
	logCtx.Error("Document failed.", "document", doc.Name, "stage", stage, "error", err)
	if ferr := doc.Fail(err); ferr != nil {
		logCtx.Error("CRITICAL: Failed to mark document as FAILED.", "document", doc.Name, "error", ferr)
	}
	result.AddError(doc.Name, stage, err)
}

// advance moves doc to next. A rejected transition is a pipeline bug, so it
// is logged and recorded on the result instead of being dropped.
func (m *Merger) advance(logCtx *slog.Logger, result *models.MergeResult, doc *models.Document, next models.Status) bool {
	if err := doc.Transition(next); err != nil {
		logCtx.Error("CRITICAL: Invalid document status transition.", "document", doc.Name, "error", err)
		result.AddError(doc.Name, StageState, err)
		return false
	}
	return true
}

// persist copies src next to dst and renames it into place, so dst only ever
// holds a complete file.
func persist(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open merged file: %w", err)
	}
	defer in.Close()

	staged, err := os.CreateTemp(filepath.Dir(dst), ".docmerge-*.pdf.part")
	if err != nil {
		return fmt.Errorf("failed to stage output: %w", err)
	}
	stagedName := staged.Name()
	if _, err := io.Copy(staged, in); err != nil {
		staged.Close()
		os.Remove(stagedName)
		return fmt.Errorf("failed to copy merged file: %w", err)
	}
	if err := errors.Join(staged.Sync(), staged.Close()); err != nil {
		os.Remove(stagedName)
		return fmt.Errorf("failed to finalize staged output: %w", err)
	}
	if err := os.Rename(stagedName, dst); err != nil {
		os.Remove(stagedName)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// CheckDirectory inspects dir without merging: page counts, text presence
// and whether conversion or OCR would run.
func (m *Merger) CheckDirectory(ctx context.Context, dir string) (*models.CheckReport, error) {
	catalog := NewCatalog(dir, CatalogOptionsFromConfig(m.cfg.Catalog))
	docs, err := catalog.Scan()
	if err != nil {
		return nil, &models.ValidationError{Field: "source_dir", Value: dir, Msg: err.Error(), Err: err}
	}
	report := &models.CheckReport{Directory: dir, Documents: make([]models.DocumentCheck, len(docs)), Warnings: catalog.Warnings()}
	classifier := Classifier{SamplePages: m.cfg.OCR.SamplePages}

	pool := NewPool(m.cfg.Conversion.Workers, ConversionSerialThreshold)
	err = pool.Run(ctx, len(docs), false, func(ctx context.Context, i int) error {
		d := docs[i]
		c := models.DocumentCheck{
			Name:            d.Name,
			Format:          d.Format(),
			SizeMB:          d.SizeMB(),
			Text:            TextUnknown.String(),
			NeedsConversion: d.Format().NeedsConversion(),
		}
		if !c.NeedsConversion {
			n, err := pdf.PageCount(d.Path)
			if err != nil {
				c.Error = (&models.ReadError{Path: d.Path, Err: err}).Error()
			} else {
				c.Pages = n
				presence, err := classifier.Classify(d.Path)
				c.Text = presence.String()
				if err != nil {
					c.Error = err.Error()
				}
				c.NeedsOCR = m.cfg.OCR.Enabled && presence == TextAbsent
			}
		}
		report.Documents[i] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range report.Documents {
		report.TotalPages += c.Pages
		if c.NeedsConversion {
			report.NeedConversion++
		}
		if c.NeedsOCR {
			report.NeedOCR++
		}
		if c.Error != "" {
			report.Unreadable++
		}
	}
	return report, nil
}
