package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a Document is moved backwards or
	// out of a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrToolTimeout marks an external tool that exceeded its deadline.
	ErrToolTimeout = errors.New("external tool timed out")
)

// ValidationError reports caller-fixable input: a bad directory, output path
// or document list. It is never retried.
type ValidationError struct {
	Field string
	Value string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s (%s: %s)", e.Msg, e.Field, e.Value)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DirectoryError is raised when a source directory cannot be scanned.
type DirectoryError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory %s: %s", e.Path, e.Reason)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// DependencyError means a required external tool is not installed.
type DependencyError struct {
	Dependency  string
	InstallHint string
}

func (e *DependencyError) Error() string {
	if e.InstallHint == "" {
		return fmt.Sprintf("required dependency %q not found", e.Dependency)
	}
	return fmt.Sprintf("required dependency %q not found; install with: %s", e.Dependency, e.InstallHint)
}

// ConversionError is a per-document failure of the format converter.
type ConversionError struct {
	Source       string
	TargetFormat string
	Err          error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert %s to %s: %v", e.Source, e.TargetFormat, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// RecognitionError is a per-document failure of the OCR tool.
type RecognitionError struct {
	File   string
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("failed to recognize text in %s with %s: %v", e.File, e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ReadError means a document could not be opened or parsed.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// MergeError is fatal to a run. Processed lists the display names that had
// already been handled so the caller can decide whether to retry.
type MergeError struct {
	Msg       string
	Processed []string
	Err       error
}

func (e *MergeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Processed) > 0 {
		fmt.Fprintf(&b, " (%d documents processed)", len(e.Processed))
	}
	return b.String()
}

func (e *MergeError) Unwrap() error { return e.Err }

// ErrorKind names the taxonomy entry of err for reporting.
func ErrorKind(err error) string {
	var (
		validation  *ValidationError
		directory   *DirectoryError
		dependency  *DependencyError
		conversion  *ConversionError
		recognition *RecognitionError
		read        *ReadError
		merge       *MergeError
	)
	switch {
	case errors.As(err, &dependency):
		return "dependency"
	case errors.As(err, &conversion):
		return "conversion"
	case errors.As(err, &recognition):
		return "recognition"
	case errors.As(err, &read):
		return "read"
	case errors.As(err, &merge):
		return "merge"
	case errors.As(err, &directory):
		return "directory"
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, ErrToolTimeout):
		return "timeout"
	}
	return "unknown"
}
