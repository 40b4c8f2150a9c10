package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Appointments"

var exportHeaders = []string{"Date", "Time", "Client", "Phone", "Email", "Service", "Professional", "Status"}

var statusFill = map[string]string{
	models.StatusScheduled: "#FFEB9C",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCancelled: "#FFC7CE",
}

// ExportService renders a company's appointments as an XLSX workbook.
type ExportService struct {
	repo   domain.Repository
	plans  *PlanService
	logger *zerolog.Logger
}

func NewExportService(repo domain.Repository, plans *PlanService, logger *zerolog.Logger) *ExportService {
	return &ExportService{repo: repo, plans: plans, logger: logger}
}

// ExportAppointments writes appointments scheduled in [from, to) to w.
// Companies on a plan without the export feature get ErrFeatureNotAvailable.
func (s *ExportService) ExportAppointments(ctx context.Context, companyID string, from, to time.Time, w io.Writer) error {
	if !from.Before(to) {
		return domain.NewValidationError("to", "must be after from")
	}
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return dataAccess("get company", err)
	}
	if err := s.plans.RequireFeature(ctx, company, models.FeatureExport); err != nil {
		return err
	}

	appointments, err := s.repo.ListAppointments(ctx, models.AppointmentFilter{CompanyID: companyID, From: from, To: to})
	if err != nil {
		return dataAccess("list appointments", err)
	}
	services, err := s.repo.ListServices(ctx, companyID)
	if err != nil {
		return dataAccess("list services", err)
	}
	professionals, err := s.repo.ListProfessionals(ctx, companyID)
	if err != nil {
		return dataAccess("list professionals", err)
	}

	serviceNames := make(map[string]string, len(services))
	for _, svc := range services {
		serviceNames[svc.ID] = svc.Name
	}
	professionalNames := make(map[string]string, len(professionals))
	for _, p := range professionals {
		professionalNames[p.ID] = p.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := s.writeHeader(f); err != nil {
		return err
	}

	styles := make(map[string]int, len(statusFill))
	for status, color := range statusFill {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("failed to create style: %w", err)
		}
		styles[status] = style
	}

	loc := company.Location()
	for i, a := range appointments {
		row := i + 2
		local := a.ScheduledAt.In(loc)
		values := []any{
			local.Format(models.DateLayout),
			local.Format(models.TimeLayout),
			a.ClientName,
			a.ClientPhone,
			a.ClientEmail,
			serviceNames[a.ServiceID],
			professionalNames[models.StringValue(a.ProfessionalID)],
			a.Status,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, start, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		if style, ok := styles[a.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(len(exportHeaders), row)
			_ = f.SetCellStyle(exportSheet, cell, cell, style)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	s.logger.Info().
		Str("company_id", companyID).
		Int("rows", len(appointments)).
		Msg("appointments exported")
	return nil
}

func (s *ExportService) writeHeader(f *excelize.File) error {
	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	_ = f.SetCellStyle(exportSheet, "A1", last, style)
	_ = f.SetColWidth(exportSheet, "A", "B", 12)
	_ = f.SetColWidth(exportSheet, "C", "G", 22)
	return f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
