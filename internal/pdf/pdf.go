// Package pdf wraps the structural PDF operations used by the merge
// pipeline: page counting, merging, optimization, bookmarks and the
// document information dictionary.
package pdf

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Info holds the string fields of the document information dictionary that
// the pipeline reads and writes.
type Info struct {
	Title    string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Bookmark is a top-level outline entry pointing at a 1-based page.
type Bookmark struct {
	Title string
	Page  int
}

// conf returns a relaxed configuration so that slightly malformed but
// readable inputs are still accepted.
func conf() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount returns the number of pages in the document at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count of %s: %w", path, err)
	}
	return n, nil
}

// Merge concatenates inputs, in order, into a new file at out.
func Merge(inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("failed to merge: no input files")
	}
	if err := api.MergeCreateFile(inputs, out, false, conf()); err != nil {
		return fmt.Errorf("failed to merge %d files: %w", len(inputs), err)
	}
	return nil
}

// Optimize rewrites in to out, dropping redundant objects.
func Optimize(in, out string) error {
	if err := api.OptimizeFile(in, out, conf()); err != nil {
		return fmt.Errorf("failed to optimize %s: %w", in, err)
	}
	return nil
}

// AddBookmarks writes a flat outline to out, replacing any existing one.
func AddBookmarks(in, out string, marks []Bookmark) error {
	bms := make([]pdfcpu.Bookmark, 0, len(marks))
	for _, m := range marks {
		bms = append(bms, pdfcpu.Bookmark{PageFrom: m.Page, Title: m.Title})
	}
	if err := api.AddBookmarksFile(in, out, bms, true, conf()); err != nil {
		return fmt.Errorf("failed to add bookmarks: %w", err)
	}
	return nil
}

// ReadInfo reads the information dictionary of the document at path.
func ReadInfo(path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, err
	}
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return Info{}, fmt.Errorf("failed to validate %s: %w", path, err)
	}
	return Info{
		Title:    ctx.Title,
		Subject:  ctx.Subject,
		Keywords: ctx.Keywords,
		Creator:  ctx.Creator,
		Producer: ctx.Producer,
	}, nil
}

// WriteInfo copies in to out with the non-empty fields of info set in the
// information dictionary. The writer stamps its own Producer on save, so
// callers should not rely on Producer surviving.
func WriteInfo(in, out string, info Info) error {
	ctx, err := api.ReadContextFile(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}
	if ctx.Info == nil {
		ir, err := ctx.IndRefForNewObject(types.NewDict())
		if err != nil {
			return fmt.Errorf("failed to create info dictionary: %w", err)
		}
		ctx.Info = ir
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return fmt.Errorf("failed to load info dictionary: %v", err)
	}

	fields := []struct {
		key   string
		value string
		dst   *string
	}{
		{"Title", info.Title, &ctx.Title},
		{"Subject", info.Subject, &ctx.Subject},
		{"Keywords", info.Keywords, &ctx.Keywords},
		{"Creator", info.Creator, &ctx.Creator},
		{"Producer", info.Producer, &ctx.Producer},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		escaped, err := types.EscapedUTF16String(f.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.key, err)
		}
		d.Update(f.key, types.StringLiteral(*escaped))
		*f.dst = f.value
	}

	if err := api.WriteContextFile(ctx, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}
