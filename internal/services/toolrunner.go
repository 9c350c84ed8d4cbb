package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/Lllllllleong/docmerge/internal/models"
)

// Executor runs external programs. It is an interface so tests can replace
// the real tools with fakes.
type Executor interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSExecutor runs programs with os/exec.
type OSExecutor struct{}

func (OSExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run returns the combined output. The process is killed when ctx is done.
func (OSExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	return cmd.CombinedOutput()
}

// ToolCommand is one invocation of an external tool. Output is the file the
// tool must create; its presence after a zero exit is the success signal.
type ToolCommand struct {
	Tool    string
	Args    []string
	Output  string
	Timeout time.Duration
}

// ToolRunner applies the timeout, logging and output checks shared by the
// converter and the recognizer.
type ToolRunner struct {
	exec   Executor
	logger *slog.Logger
}

func NewToolRunner(e Executor, logger *slog.Logger) *ToolRunner {
	if e == nil {
		e = OSExecutor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRunner{exec: e, logger: logger}
}

// LookPath resolves tool or returns a DependencyError with an install hint.
func (r *ToolRunner) LookPath(tool string) (string, error) {
	path, err := r.exec.LookPath(tool)
	if err != nil {
		return "", &models.DependencyError{Dependency: tool, InstallHint: InstallHint(tool)}
	}
	return path, nil
}

// Run executes c. On timeout, cancellation or a missing output file any
// partial output is removed.
func (r *ToolRunner) Run(ctx context.Context, c ToolCommand) error {
	path, err := r.LookPath(c.Tool)
	if err != nil {
		return err
	}
	logCtx := r.logger.With("tool", c.Tool, "output", c.Output)

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	logCtx.Debug("Running external tool.", "args", c.Args)
	out, err := r.exec.Run(runCtx, path, c.Args...)

	switch {
	case ctx.Err() != nil:
		removePartial(c.Output)
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		removePartial(c.Output)
		logCtx.Warn("External tool timed out.", "timeout", c.Timeout.String())
		return fmt.Errorf("%w: %s after %s", models.ErrToolTimeout, c.Tool, c.Timeout)
	case err != nil:
		removePartial(c.Output)
		logCtx.Error("External tool failed.", "error", err, "stderr", tail(out, 2000))
		return fmt.Errorf("%s exited with error: %w", c.Tool, err)
	}

	if c.Output != "" {
		info, err := os.Stat(c.Output)
		if err != nil || info.Size() == 0 {
			removePartial(c.Output)
			logCtx.Error("External tool produced no output.", "stdout", tail(out, 2000))
			return fmt.Errorf("%s reported success but did not produce %s", c.Tool, c.Output)
		}
	}
	logCtx.Debug("External tool finished.", "elapsed", time.Since(start).String())
	return nil
}

func removePartial(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}

var installHints = map[string]map[string]string{
	"windows": {
		"ocrmypdf":    "pip install ocrmypdf",
		"tesseract":   "download from https://github.com/UB-Mannheim/tesseract/wiki",
		"ghostscript": "download from https://www.ghostscript.com/download/gsdnld.html",
		"powershell":  "install PowerShell and Microsoft Word",
	},
	"darwin": {
		"ocrmypdf":    "brew install ocrmypdf",
		"tesseract":   "brew install tesseract",
		"ghostscript": "brew install ghostscript",
		"libreoffice": "brew install --cask libreoffice",
		"soffice":     "brew install --cask libreoffice",
	},
	"linux": {
		"ocrmypdf":    "sudo apt-get install ocrmypdf",
		"tesseract":   "sudo apt-get install tesseract-ocr",
		"ghostscript": "sudo apt-get install ghostscript",
		"libreoffice": "sudo apt-get install libreoffice",
		"soffice":     "sudo apt-get install libreoffice",
	},
}

// InstallHint returns a platform specific installation command for tool.
func InstallHint(tool string) string {
	return installHintFor(runtime.GOOS, tool)
}

func installHintFor(goos, tool string) string {
	if hint, ok := installHints[goos][tool]; ok {
		return hint
	}
	return fmt.Sprintf("install %s for your system", tool)
}
