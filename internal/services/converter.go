package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/models"
)

const (
	// ConversionSerialThreshold is the batch size up to which conversions run
	// one at a time.
	ConversionSerialThreshold = 3

	targetFormat = "pdf"
)

// Converter turns word-processor documents into PDFs with an external tool:
// Word through PowerShell COM automation on Windows, a headless LibreOffice
// everywhere else.
type Converter struct {
	runner  *ToolRunner
	command string
	timeout time.Duration
	goos    string
	pool    *Pool
	logger  *slog.Logger
}

func NewConverter(cfg config.ConversionConfig, runner *ToolRunner, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		runner:  runner,
		command: cfg.Command,
		timeout: cfg.Timeout,
		goos:    runtime.GOOS,
		pool:    NewPool(cfg.Workers, ConversionSerialThreshold),
		logger:  logger,
	}
}

// Tool resolves the conversion program, returning a DependencyError when it
// is not installed.
func (c *Converter) Tool() (string, error) {
	if c.command != "" && c.command != "auto" {
		if _, err := c.runner.LookPath(c.command); err != nil {
			return "", err
		}
		return c.command, nil
	}
	if c.goos == "windows" {
		if _, err := c.runner.LookPath("powershell"); err != nil {
			return "", err
		}
		return "powershell", nil
	}
	for _, candidate := range []string{"libreoffice", "soffice"} {
		if _, err := c.runner.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &models.DependencyError{Dependency: "libreoffice", InstallHint: installHintFor(c.goos, "libreoffice")}
}

// OutputPath is where Convert writes the PDF for doc inside destDir.
func OutputPath(doc *models.Document, destDir string) string {
	return filepath.Join(destDir, doc.Stem()+".pdf")
}

// Convert writes doc as a PDF into destDir and returns its path. destDir
// must not be shared with another conversion of a document with the same
// stem. Every failure is a *models.ConversionError.
func (c *Converter) Convert(ctx context.Context, doc *models.Document, destDir string) (string, error) {
	if !doc.Format().NeedsConversion() {
		return "", &models.ConversionError{Source: doc.Name, TargetFormat: targetFormat, Err: fmt.Errorf("format %s does not need conversion", doc.Format())}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &models.ConversionError{Source: doc.Name, TargetFormat: targetFormat, Err: err}
	}
	tool, err := c.Tool()
	if err != nil {
		return "", &models.ConversionError{Source: doc.Name, TargetFormat: targetFormat, Err: err}
	}

	out := OutputPath(doc, destDir)
	cmd := ToolCommand{Tool: tool, Output: out, Timeout: c.timeout}
	if tool == "powershell" || tool == "pwsh" {
		cmd.Args = wordAutomationArgs(doc.Path, out)
	} else {
		profile, err := os.MkdirTemp(destDir, ".profile-*")
		if err != nil {
			return "", &models.ConversionError{Source: doc.Name, TargetFormat: targetFormat, Err: err}
		}
		defer os.RemoveAll(profile)
		cmd.Args = officeArgs(doc.Path, destDir, profile)
	}

	c.logger.Info("Converting document.", "document", doc.Name, "tool", tool)
	if err := c.runner.Run(ctx, cmd); err != nil {
		return "", &models.ConversionError{Source: doc.Name, TargetFormat: targetFormat, Err: err}
	}
	return out, nil
}

// officeArgs builds a headless conversion with a private user profile so
// concurrent invocations do not contend for the same profile lock.
func officeArgs(src, destDir, profile string) []string {
	profileURL := url.URL{Scheme: "file", Path: filepath.ToSlash(profile)}
	return []string{
		"-env:UserInstallation=" + profileURL.String(),
		"--headless",
		"--convert-to", targetFormat,
		"--outdir", destDir,
		src,
	}
}

// wdFormatPDF is Word's WdSaveFormat for PDF.
const wdFormatPDF = 17

func wordAutomationArgs(src, out string) []string {
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	script := strings.Join([]string{
		"$ErrorActionPreference = 'Stop'",
		"$word = New-Object -ComObject Word.Application",
		"$word.Visible = $false",
		"try {",
		"$doc = $word.Documents.Open(" + quote(src) + ", $false, $true)",
		"$doc.SaveAs([ref] " + quote(out) + ", [ref] " + strconv.Itoa(wdFormatPDF) + ")",
		"$doc.Close($false)",
		"} finally { $word.Quit() }",
	}, "; ")
	return []string{"-NoProfile", "-NonInteractive", "-Command", script}
}

// ConvertBatch converts every word-processor document in docs and routes PDFs
// through unchanged. Results are in the order of docs. Each document is
// converted into its own subdirectory of destDir named after its index.
//
// Without failFast every failure is recorded on its result and the returned
// error is only set on cancellation. With failFast the first failure stops
// the batch and is returned.
func (c *Converter) ConvertBatch(ctx context.Context, docs []*models.Document, destDir string, failFast bool) ([]StageResult, error) {
	results := make([]StageResult, len(docs))
	var pending []int
	for i, d := range docs {
		results[i].Doc = d
		if d.Format().NeedsConversion() {
			pending = append(pending, i)
		} else {
			results[i].Path = d.Path
		}
	}
	if len(pending) == 0 {
		return results, nil
	}

	c.logger.Info("Starting conversion batch.", "documents", len(pending), "workers", c.pool.Workers)
	err := c.pool.Run(ctx, len(pending), failFast, func(ctx context.Context, n int) error {
		i := pending[n]
		doc := docs[i]
		if err := doc.Transition(models.StatusConverting); err != nil {
			results[i].Err = err
			return err
		}
		out, err := c.Convert(ctx, doc, filepath.Join(destDir, strconv.Itoa(doc.Index)))
		if err != nil {
			c.logger.Error("Conversion failed.", "document", doc.Name, "error", err)
			results[i].Err = err
			return err
		}
		results[i].Path = out
		return nil
	})
	return results, err
}
