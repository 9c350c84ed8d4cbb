package pdf

import (
	"fmt"
	"strings"

	"github.com/tsawler/tabula/reader"
)

// SampleText extracts the text of up to maxPages leading pages of the
// document at path. It stops at the first page that yields non-whitespace
// text, so the result has at most one non-empty entry at its end.
func SampleText(path string, maxPages int) ([]string, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}

	sampled := make([]string, 0, count)
	for i := 0; i < count; i++ {
		page, err := r.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("failed to load page %d of %s: %w", i+1, path, err)
		}
		fragments, err := r.ExtractTextFragments(page)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i+1, path, err)
		}
		var b strings.Builder
		for _, f := range fragments {
			b.WriteString(f.Text)
		}
		text := strings.TrimSpace(b.String())
		sampled = append(sampled, text)
		if text != "" {
			break
		}
	}
	return sampled, nil
}

// HasText reports whether any of the first maxPages pages carries
// extractable text.
func HasText(path string, maxPages int) (bool, error) {
	sampled, err := SampleText(path, maxPages)
	if err != nil {
		return false, err
	}
	return len(sampled) > 0 && sampled[len(sampled)-1] != "", nil
}
