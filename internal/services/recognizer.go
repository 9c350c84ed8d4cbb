package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/models"
)

// RecognitionSerialThreshold is the batch size up to which OCR runs one
// document at a time.
const RecognitionSerialThreshold = 2

// Recognizer adds a searchable text layer to image-only PDFs with ocrmypdf.
type Recognizer struct {
	runner     *ToolRunner
	classifier Classifier
	cfg        config.OCRConfig
	pool       *Pool
	logger     *slog.Logger
}

func NewRecognizer(cfg config.OCRConfig, runner *ToolRunner, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Command == "" {
		cfg.Command = "ocrmypdf"
	}
	return &Recognizer{
		runner:     runner,
		classifier: Classifier{SamplePages: cfg.SamplePages},
		cfg:        cfg,
		pool:       NewPool(cfg.Workers, RecognitionSerialThreshold),
		logger:     logger,
	}
}

// NeedsRecognition classifies path. A read failure is returned as a
// *models.ReadError and never reported as needing OCR.
func (r *Recognizer) NeedsRecognition(path string) (bool, error) {
	presence, err := r.classifier.Classify(path)
	if err != nil {
		return false, err
	}
	return presence == TextAbsent, nil
}

// Process returns in unchanged when it already has text, otherwise runs the
// OCR tool and returns out. Tool failures are returned as
// *models.RecognitionError.
func (r *Recognizer) Process(ctx context.Context, in, out string) (string, error) {
	needs, err := r.NeedsRecognition(in)
	if err != nil {
		return "", err
	}
	if !needs {
		return in, nil
	}
	if err := r.Recognize(ctx, in, out); err != nil {
		return "", err
	}
	return out, nil
}

// Recognize runs the OCR tool unconditionally.
func (r *Recognizer) Recognize(ctx context.Context, in, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return &models.RecognitionError{File: filepath.Base(in), Engine: r.cfg.Command, Err: err}
	}
	err := r.runner.Run(ctx, ToolCommand{
		Tool:    r.cfg.Command,
		Args:    r.args(in, out),
		Output:  out,
		Timeout: r.cfg.Timeout,
	})
	if err != nil {
		return &models.RecognitionError{File: filepath.Base(in), Engine: r.cfg.Command, Err: err}
	}
	return nil
}

// args builds the ocrmypdf command line. --image-dpi has no effect on
// ordinary PDF input.
func (r *Recognizer) args(in, out string) []string {
	args := []string{
		"-l", strings.Join(r.cfg.Languages, "+"),
		"--image-dpi", strconv.Itoa(r.cfg.DPI),
	}
	if r.cfg.SkipTextPages {
		args = append(args, "--skip-text")
	}
	args = append(args, "--quiet")
	args = append(args, r.cfg.ExtraArgs...)
	return append(args, in, out)
}

// RecognitionItem pairs a document with its current paginated form.
type RecognitionItem struct {
	Doc  *models.Document
	Path string
}

// ProcessBatch recognizes the documents that need it. A tool failure,
// timeout or missing tool falls back to the unrecognized input with a
// warning, so it never fails a document. A document that cannot be
// classified fails with a *models.ReadError; with failFast that error stops
// the batch and is returned.
func (r *Recognizer) ProcessBatch(ctx context.Context, items []RecognitionItem, destDir string, failFast bool) ([]StageResult, error) {
	results := make([]StageResult, len(items))
	r.logger.Info("Starting recognition batch.", "documents", len(items), "workers", r.pool.Workers)
	err := r.pool.Run(ctx, len(items), failFast, func(ctx context.Context, i int) error {
		results[i] = r.processItem(ctx, items[i], destDir)
		return results[i].Err
	})
	return results, err
}

func (r *Recognizer) processItem(ctx context.Context, item RecognitionItem, destDir string) StageResult {
	doc := item.Doc
	res := StageResult{Doc: doc}
	logCtx := r.logger.With("document", doc.Name)

	presence, err := r.classifier.Classify(item.Path)
	if err != nil {
		logCtx.Error("Failed to classify document.", "error", err)
		res.Err = err
		return res
	}
	doc.SetHasText(presence == TextPresent)
	if presence == TextPresent {
		doc.OCRStatus = models.OCRNotNeeded
		res.Path = item.Path
		return res
	}

	doc.OCRStatus = models.OCRRequired
	if err := doc.Transition(models.StatusRecognizing); err != nil {
		res.Err = err
		return res
	}
	out := filepath.Join(destDir, fmt.Sprintf("%04d_%s.pdf", doc.Index, doc.Stem()))
	logCtx.Info("Running OCR.", "languages", r.cfg.Languages)
	if err := r.Recognize(ctx, item.Path, out); err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		res.Recognized = true
		logCtx.Warn("OCR failed, using the original document.", "error", err)
		doc.OCRStatus = models.OCRFailed
		res.Path = item.Path
		res.Warning = fmt.Sprintf("OCR failed for %s, merged without a text layer: %v", doc.Name, err)
		return res
	}
	doc.OCRStatus = models.OCRCompleted
	res.Path = out
	res.Recognized = true
	return res
}
