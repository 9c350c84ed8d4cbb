package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/docmerge/internal/config"
	"github.com/Lllllllleong/docmerge/internal/pdf/pdftest"
)

type fakeTool func(ctx context.Context, args []string) ([]byte, error)

// fakeExecutor stands in for the external tools. Tools not registered are
// reported as not installed.
type fakeExecutor struct {
	mu    sync.Mutex
	tools map[string]fakeTool
	calls map[string][][]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{tools: map[string]fakeTool{}, calls: map[string][][]string{}}
}

func (f *fakeExecutor) with(name string, fn fakeTool) *fakeExecutor {
	f.tools[name] = fn
	return f
}

func (f *fakeExecutor) LookPath(name string) (string, error) {
	if _, ok := f.tools[name]; ok {
		return "/fake/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	tool := filepath.Base(name)
	f.mu.Lock()
	fn, ok := f.tools[tool]
	f.calls[tool] = append(f.calls[tool], append([]string(nil), args...))
	f.mu.Unlock()
	if !ok {
		return nil, exec.ErrNotFound
	}
	return fn(ctx, args)
}

func (f *fakeExecutor) callCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[tool])
}

func (f *fakeExecutor) lastCall(tool string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[tool]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// fakeOffice behaves like a headless office conversion: it writes a PDF with
// pages text pages into --outdir, named after the source stem.
func fakeOffice(pages int) fakeTool {
	return func(ctx context.Context, args []string) ([]byte, error) {
		src := args[len(args)-1]
		outDir := argAfter(args, "--outdir")
		if outDir == "" {
			return nil, errors.New("missing --outdir")
		}
		if strings.Contains(filepath.Base(src), "broken") {
			return []byte("Error: source file could not be loaded"), errors.New("exit status 1")
		}
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		texts := make([]string, pages)
		for i := range texts {
			texts[i] = fmt.Sprintf("%s page %d", stem, i+1)
		}
		return nil, os.WriteFile(filepath.Join(outDir, stem+".pdf"), pdftest.Build(nil, texts...), 0o644)
	}
}

// fakeOCR copies its input to its output, like ocrmypdf on success.
func fakeOCR(ctx context.Context, args []string) ([]byte, error) {
	in, out := args[len(args)-2], args[len(args)-1]
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}
	return nil, os.WriteFile(out, data, 0o644)
}

func failingTool(ctx context.Context, args []string) ([]byte, error) {
	return []byte("something went wrong"), errors.New("exit status 2")
}

func hangingTool(ctx context.Context, args []string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// testConfig is the default configuration with the converter pinned to
// libreoffice so tests behave the same on every platform.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Conversion.Command = "libreoffice"
	cfg.Processing.TempDir = t.TempDir()
	return cfg
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
