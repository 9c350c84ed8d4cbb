package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/docmerge/internal/models"
)

func TestToolRunnerSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	fake := newFakeExecutor().with("tool", func(ctx context.Context, args []string) ([]byte, error) {
		return nil, os.WriteFile(out, []byte("data"), 0o644)
	})
	r := NewToolRunner(fake, nil)
	if err := r.Run(context.Background(), ToolCommand{Tool: "tool", Args: []string{"a"}, Output: out, Timeout: time.Second}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := fake.lastCall("tool"); len(got) != 1 || got[0] != "a" {
		t.Errorf("args = %v", got)
	}
}

func TestToolRunnerMissingTool(t *testing.T) {
	r := NewToolRunner(newFakeExecutor(), nil)
	err := r.Run(context.Background(), ToolCommand{Tool: "ocrmypdf", Timeout: time.Second})
	var derr *models.DependencyError
	if !errors.As(err, &derr) {
		t.Fatalf("Run() = %v, want DependencyError", err)
	}
	if derr.Dependency != "ocrmypdf" || derr.InstallHint == "" {
		t.Errorf("unexpected dependency error: %+v", derr)
	}
}

func TestToolRunnerFailureRemovesPartialOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	fake := newFakeExecutor().with("tool", func(ctx context.Context, args []string) ([]byte, error) {
		_ = os.WriteFile(out, []byte("half"), 0o644)
		return []byte("boom"), errors.New("exit status 1")
	})
	err := NewToolRunner(fake, nil).Run(context.Background(), ToolCommand{Tool: "tool", Output: out, Timeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "exited with error") {
		t.Fatalf("Run() = %v, want exit error", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output was not removed")
	}
}

func TestToolRunnerTimeout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	fake := newFakeExecutor().with("tool", func(ctx context.Context, args []string) ([]byte, error) {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return hangingTool(ctx, args)
	})
	err := NewToolRunner(fake, nil).Run(context.Background(), ToolCommand{Tool: "tool", Output: out, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, models.ErrToolTimeout) {
		t.Fatalf("Run() = %v, want ErrToolTimeout", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output was not removed after timeout")
	}
}

func TestToolRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := newFakeExecutor().with("tool", hangingTool)
	err := NewToolRunner(fake, nil).Run(ctx, ToolCommand{Tool: "tool", Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
}

func TestToolRunnerMissingOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never.pdf")
	fake := newFakeExecutor().with("tool", func(ctx context.Context, args []string) ([]byte, error) {
		return []byte("all good"), nil
	})
	err := NewToolRunner(fake, nil).Run(context.Background(), ToolCommand{Tool: "tool", Output: out, Timeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "did not produce") {
		t.Fatalf("Run() = %v, want missing output error", err)
	}
}

func TestInstallHints(t *testing.T) {
	tests := []struct {
		goos, tool, want string
	}{
		{"linux", "libreoffice", "sudo apt-get install libreoffice"},
		{"darwin", "tesseract", "brew install tesseract"},
		{"windows", "ocrmypdf", "pip install ocrmypdf"},
		{"plan9", "ocrmypdf", "install ocrmypdf for your system"},
	}
	for _, tt := range tests {
		if got := installHintFor(tt.goos, tt.tool); got != tt.want {
			t.Errorf("installHintFor(%s, %s) = %q, want %q", tt.goos, tt.tool, got, tt.want)
		}
	}
}
