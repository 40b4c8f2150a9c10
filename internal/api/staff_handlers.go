package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"
	"agenda/internal/service"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req service.CompanyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	company, err := s.svc.Companies.CreateCompany(r.Context(), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (s *HTTPServer) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.svc.Companies.GetCompany(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleAddProfessional(w http.ResponseWriter, r *http.Request) {
	var req service.ProfessionalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p, err := s.svc.Companies.AddProfessional(r.Context(), chi.URLParam(r, "companyID"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleAddService(w http.ResponseWriter, r *http.Request) {
	var req service.ServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	svc, err := s.svc.Companies.AddService(r.Context(), chi.URLParam(r, "companyID"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *HTTPServer) handleUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Plans.Report(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -models.DefaultExportRangeDays)
	if err := parseRange(r, &from, &to); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	companyID := chi.URLParam(r, "companyID")
	var buf bytes.Buffer
	if err := s.svc.Export.ExportAppointments(r.Context(), companyID, from, to, &buf); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	filename := fmt.Sprintf("appointments_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.AppointmentFilter{
		CompanyID:      chi.URLParam(r, "companyID"),
		ProfessionalID: models.OptionalString(strings.TrimSpace(q.Get("professional_id"))),
		ServiceID:      strings.TrimSpace(q.Get("service_id")),
		Statuses:       splitCSV(q.Get("status")),
	}
	if err := parseRange(r, &filter.From, &filter.To); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	list, err := s.svc.Appointments.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (s *HTTPServer) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.svc.Appointments.UpdateStatus(r.Context(),
		chi.URLParam(r, "companyID"), chi.URLParam(r, "appointmentID"), strings.TrimSpace(body.Status))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if err := parseRange(r, &from, &to); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		writeServiceError(w, s.logger, domain.NewValidationError("from", "from and to are required"))
		return
	}

	blocks, err := s.svc.Blocks.List(r.Context(), chi.URLParam(r, "companyID"), from, to,
		strings.TrimSpace(r.URL.Query().Get("professional_id")))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var req service.BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b, err := s.svc.Blocks.Create(r.Context(), chi.URLParam(r, "companyID"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	var req service.BlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b, err := s.svc.Blocks.Update(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "blockID"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Blocks.Delete(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "blockID")); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseRange reads the optional from/to query parameters, RFC 3339 or a
// bare UTC date, into the given times.
func parseRange(r *http.Request, from, to *time.Time) error {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", from}, {"to", to}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := parseTimeParam(raw)
		if err != nil {
			return domain.NewValidationError(p.name, "must be an RFC 3339 time or a 2006-01-02 date")
		}
		*p.dst = t
	}
	return nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(models.DateLayout, raw)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
