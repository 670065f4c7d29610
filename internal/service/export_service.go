package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scolara-dev/admission-api/pkg/export"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

// ExportFormat is the requested download format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult carries a rendered download.
type ExportResult struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// ExportService renders analytics snapshots as CSV or PDF downloads.
// Exports are generated on demand and streamed back; nothing is stored.
type ExportService struct {
	analytics *AnalyticsService
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(analytics *AnalyticsService, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{analytics: analytics, csv: csv, pdf: pdf, logger: logger}
}

// ParseFormat normalises a format query value.
func ParseFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportFormatCSV, "":
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", raw))
	}
}

// Funnel renders the session funnel snapshot. scopeSchoolID restricts which
// sessions the caller may export; empty means unrestricted.
func (s *ExportService) Funnel(ctx context.Context, sessionID, scopeSchoolID string, format ExportFormat) (*ExportResult, error) {
	if err := s.analytics.AuthorizeSession(ctx, sessionID, scopeSchoolID); err != nil {
		return nil, err
	}
	funnel, _, err := s.analytics.Funnel(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(funnel))
	for _, stage := range funnel {
		rows = append(rows, map[string]string{
			"Order":          fmt.Sprintf("%d", stage.Order),
			"Stage":          stage.StageKey,
			"Label":          stage.Label,
			"Enquiries":      fmt.Sprintf("%d", stage.Count),
			"Percentage (%)": fmt.Sprintf("%.2f", stage.Percentage),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Order", "Stage", "Label", "Enquiries", "Percentage (%)"},
		Rows:    rows,
	}
	title := "Admission Funnel"
	return s.render(dataset, title, "admission_funnel", format)
}

// Sources renders the per-source conversion snapshot for a school.
func (s *ExportService) Sources(ctx context.Context, schoolID string, format ExportFormat) (*ExportResult, error) {
	sources, _, err := s.analytics.Sources(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(sources))
	for _, source := range sources {
		rows = append(rows, map[string]string{
			"Source":         string(source.Source),
			"Enquiries":      fmt.Sprintf("%d", source.TotalEnquiries),
			"Enrolled":       fmt.Sprintf("%d", source.Enrolled),
			"Conversion (%)": fmt.Sprintf("%.2f", source.ConversionRate),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Source", "Enquiries", "Enrolled", "Conversion (%)"},
		Rows:    rows,
	}
	return s.render(dataset, "Enquiry Sources", "enquiry_sources", format)
}

func (s *ExportService) render(dataset export.Dataset, title, baseName string, format ExportFormat) (*ExportResult, error) {
	timestamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Payload:     payload,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("%s_%s.csv", baseName, timestamp),
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Payload:     payload,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("%s_%s.pdf", baseName, timestamp),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
}
