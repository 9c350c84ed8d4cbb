package services

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/Lllllllleong/docmerge/internal/pdf"
)

// Verifier compares a merged document's provenance with the current
// contents of its source directory. It reads both and modifies neither.
type Verifier struct {
	opts   CatalogOptions
	logger *slog.Logger
}

// NewVerifier uses opts to rebuild the expected file set, so they should
// match the options the merge ran with.
func NewVerifier(opts CatalogOptions, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{opts: opts, logger: logger}
}

// Verify builds the report. Only an unusable source directory is an error;
// an unreadable document or missing provenance is reported through State.
func (v *Verifier) Verify(ctx context.Context, pdfPath, sourceDir string) (*models.VerificationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := NewCatalog(sourceDir, v.opts).Scan()
	if err != nil {
		return nil, err
	}
	report := &models.VerificationReport{
		PDFPath:   pdfPath,
		SourceDir: sourceDir,
		Expected:  make([]string, 0, len(docs)),
		Found:     []string{},
	}
	absPDF, _ := filepath.Abs(pdfPath)
	for _, d := range docs {
		// A merged document kept in its own source directory is not one of
		// its sources.
		if d.Path == absPDF {
			continue
		}
		report.Expected = append(report.Expected, d.Name)
	}
	logCtx := v.logger.With("pdf", pdfPath, "sourceDir", sourceDir)

	pages, err := pdf.PageCount(pdfPath)
	if err != nil {
		logCtx.Warn("Merged document is unreadable.", "error", err)
		report.State = models.VerificationUnreadable
		report.Missing = sortedCopy(report.Expected)
		report.Extra = []string{}
		return report, nil
	}
	report.PageCount = pages

	prov := ReadProvenance(pdfPath)
	report.ProvenanceFound = prov.Found
	report.ProvenanceField = prov.Field
	if prov.Found {
		report.Found = prov.Names
	}
	report.Missing = difference(report.Expected, report.Found)
	report.Extra = difference(report.Found, report.Expected)
	// Without a payload nothing was checked, even when nothing is expected.
	report.IsValid = prov.Found && len(report.Missing) == 0 && len(report.Extra) == 0

	switch {
	case !prov.Found:
		report.State = models.VerificationNoProvenance
	case report.IsValid:
		report.State = models.VerificationVerified
	default:
		report.State = models.VerificationMismatch
	}
	logCtx.Info("Verification finished.", "state", report.State, "missing", len(report.Missing), "extra", len(report.Extra))
	return report, nil
}

// difference returns the sorted elements of a that are not in b.
func difference(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := []string{}
	seen := make(map[string]struct{})
	for _, s := range a {
		if _, ok := set[s]; ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}
