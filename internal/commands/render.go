package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lllllllleong/docmerge/internal/history"
	"github.com/Lllllllleong/docmerge/internal/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func field(label string, value any) string {
	return fmt.Sprintf("%s %v", mutedStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
}

// RenderResult summarizes a merge run.
func RenderResult(r *models.MergeResult) string {
	status := okStyle.Render("Merge complete")
	if r.FailedDocuments > 0 || r.SkippedDocuments > 0 {
		status = warnStyle.Render("Merge complete with problems")
	}
	lines := []string{
		titleStyle.Render("docmerge") + "  " + status,
		field("Output", r.OutputPath),
		field("Documents", fmt.Sprintf("%d processed, %d failed, %d skipped of %d",
			r.ProcessedDocuments, r.FailedDocuments, r.SkippedDocuments, r.TotalDocuments)),
		field("Pages", r.TotalPages),
		field("OCR", fmt.Sprintf("%d documents", r.RecognizedDocuments)),
		field("Success", fmt.Sprintf("%.1f%%", r.SuccessRate())),
		field("Duration", r.Duration.Round(time.Millisecond)),
	}
	out := boxStyle.Render(strings.Join(lines, "\n"))

	var extra []string
	for _, e := range r.Errors {
		name := e.Document
		if name == "" {
			name = "(output)"
		}
		extra = append(extra, errStyle.Render("✗ ")+fmt.Sprintf("%s [%s/%s] %s", name, e.Stage, e.Kind, e.Message))
	}
	for _, w := range r.Warnings {
		extra = append(extra, warnStyle.Render("! ")+w)
	}
	if len(extra) > 0 {
		out += "\n" + strings.Join(extra, "\n")
	}
	return out
}

// RenderVerification summarizes a verification report.
func RenderVerification(r *models.VerificationReport) string {
	var status string
	switch r.State {
	case models.VerificationVerified:
		status = okStyle.Render("Verified")
	case models.VerificationNoProvenance:
		status = warnStyle.Render("No provenance metadata found")
	case models.VerificationUnreadable:
		status = errStyle.Render("Merged document is unreadable")
	default:
		status = errStyle.Render("Mismatch")
	}
	provField := r.ProvenanceField
	if provField == "" {
		provField = "-"
	}
	lines := []string{
		titleStyle.Render("Verification") + "  " + status,
		field("PDF", r.PDFPath),
		field("Source", r.SourceDir),
		field("Pages", r.PageCount),
		field("Field", provField),
		field("Expected", len(r.Expected)),
		field("Found", len(r.Found)),
		field("Match", fmt.Sprintf("%.1f%%", r.MatchPercentage())),
	}
	out := boxStyle.Render(strings.Join(lines, "\n"))
	for _, name := range r.Missing {
		out += "\n" + errStyle.Render("missing ") + name
	}
	for _, name := range r.Extra {
		out += "\n" + warnStyle.Render("extra   ") + name
	}
	return out
}

// RenderCheck lists what a merge of the directory would do.
func RenderCheck(r *models.CheckReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Check "+r.Directory) + "\n")
	fmt.Fprintf(&b, "%-40s %-12s %8s %6s %-9s %s\n", "Document", "Format", "Size MB", "Pages", "Text", "Action")
	b.WriteString(mutedStyle.Render(strings.Repeat("-", 90)) + "\n")
	for _, d := range r.Documents {
		var actions []string
		if d.NeedsConversion {
			actions = append(actions, "convert")
		}
		if d.NeedsOCR {
			actions = append(actions, "ocr")
		}
		action := strings.Join(actions, "+")
		if d.Error != "" {
			action = errStyle.Render("unreadable")
		} else if action == "" {
			action = okStyle.Render("merge")
		}
		pages := "-"
		if d.Pages > 0 {
			pages = fmt.Sprint(d.Pages)
		}
		fmt.Fprintf(&b, "%-40s %-12s %8.2f %6s %-9s %s\n", truncate(d.Name, 40), d.Format, d.SizeMB, pages, d.Text, action)
	}
	fmt.Fprintf(&b, "\n%d documents, %d known pages, %d to convert, %d to OCR, %d unreadable",
		len(r.Documents), r.TotalPages, r.NeedConversion, r.NeedOCR, r.Unreadable)
	for _, w := range r.Warnings {
		b.WriteString("\n" + warnStyle.Render("! ") + w)
	}
	return b.String()
}

// RenderDependencies lists the external tools and how to install missing ones.
func RenderDependencies(statuses []models.DependencyStatus) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("External tools") + "\n")
	for _, s := range statuses {
		mark := okStyle.Render("✓")
		detail := s.Path
		switch {
		case !s.Found && s.Required:
			mark = errStyle.Render("✗")
			detail = "missing, install with: " + s.InstallHint
		case !s.Found:
			mark = warnStyle.Render("-")
			detail = "not installed (optional), install with: " + s.InstallHint
		}
		fmt.Fprintf(&b, "%s %-12s %-32s %s\n", mark, s.Name, mutedStyle.Render(s.Purpose), detail)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderRuns lists ledger entries, newest first.
func RenderRuns(runs []history.Run) string {
	if len(runs) == 0 {
		return "No runs recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-10s %5s %5s %5s %6s  %s\n", "Run", "Created", "Status", "OK", "Fail", "Skip", "Pages", "Output")
	b.WriteString(mutedStyle.Render(strings.Repeat("-", 120)) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s %-20s %-10s %5d %5d %5d %6d  %s\n",
			r.RunID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			statusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			r.ProcessedDocuments, r.FailedDocuments, r.SkippedDocuments, r.PageCount, r.OutputPath)
	}
	fmt.Fprintf(&b, "\nTotal: %d runs", len(runs))
	return b.String()
}

// RenderRun shows one ledger entry with its documents.
func RenderRun(r *history.Run, docs []history.RunDocument) string {
	lines := []string{
		titleStyle.Render("Run "+r.RunID) + "  " + statusStyle(r.Status).Render(r.Status),
		field("Created", r.CreatedAt.Local().Format("2006-01-02 15:04:05")),
		field("Source", r.Source),
		field("Output", r.OutputPath),
		field("Pages", r.PageCount),
		field("Duration", r.Duration),
	}
	if r.ErrorDetails != "" {
		lines = append(lines, field("Error", errStyle.Render(r.ErrorDetails)))
	}
	out := boxStyle.Render(strings.Join(lines, "\n"))
	for _, d := range docs {
		pages := "-"
		if d.PageCount.Valid {
			pages = fmt.Sprint(d.PageCount.Int64)
		}
		line := fmt.Sprintf("%3d. %-40s %-9s %5s", d.Position+1, truncate(d.Name, 40), statusStyle(d.Status).Render(fmt.Sprintf("%-9s", d.Status)), pages)
		if d.Error != "" {
			line += "  " + errStyle.Render(d.Error)
		}
		out += "\n" + line
	}
	return out
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.RecordComplete, string(models.StatusMerged):
		return okStyle
	case models.RecordIncomplete, string(models.StatusSkipped):
		return warnStyle
	}
	return errStyle
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
