package services

import (
	"errors"

	"github.com/Lllllllleong/docmerge/internal/models"
)

// Dependencies reports the external tools the current configuration relies
// on. OCR tools are only required when OCR is enabled.
func (m *Merger) Dependencies() []models.DependencyStatus {
	ocr := m.cfg.OCR.Enabled
	var statuses []models.DependencyStatus

	converter := models.DependencyStatus{Name: "libreoffice", Purpose: "DOC/DOCX conversion", Required: true}
	tool, err := m.converter.Tool()
	var derr *models.DependencyError
	switch {
	case err == nil:
		converter.Name = tool
		converter.Found = true
		converter.Path, _ = m.runner.LookPath(tool)
	case errors.As(err, &derr):
		converter.Name = derr.Dependency
		converter.InstallHint = derr.InstallHint
	}
	statuses = append(statuses, converter)

	statuses = append(statuses,
		m.lookup(m.cfg.OCR.Command, "OCR of image-only PDFs", ocr),
		m.lookup("tesseract", "OCR engine used by ocrmypdf", ocr),
	)
	gs := models.DependencyStatus{Name: "ghostscript", Purpose: "PDF rendering used by ocrmypdf", Required: ocr}
	for _, candidate := range []string{"gs", "gswin64c", "gswin32c"} {
		if path, err := m.runner.LookPath(candidate); err == nil {
			gs.Found, gs.Path = true, path
			break
		}
	}
	if !gs.Found {
		gs.InstallHint = InstallHint("ghostscript")
	}
	return append(statuses, gs)
}

func (m *Merger) lookup(tool, purpose string, required bool) models.DependencyStatus {
	s := models.DependencyStatus{Name: tool, Purpose: purpose, Required: required}
	path, err := m.runner.LookPath(tool)
	if err != nil {
		s.InstallHint = InstallHint(tool)
		return s
	}
	s.Found, s.Path = true, path
	return s
}

// MissingRequired filters statuses down to required tools that are absent.
func MissingRequired(statuses []models.DependencyStatus) []models.DependencyStatus {
	var missing []models.DependencyStatus
	for _, s := range statuses {
		if s.Required && !s.Found {
			missing = append(missing, s)
		}
	}
	return missing
}
