package api

import (
	"errors"
	"net/http"
	"strings"

	"agenda/internal/domain"
	"agenda/internal/ratelimit"
	"agenda/internal/service"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handlePublicPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Companies.PublicPage(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.AvailabilityRequest{
		Date:           strings.TrimSpace(q.Get("date")),
		ServiceID:      strings.TrimSpace(q.Get("service_id")),
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
	}

	availability, err := s.svc.Availability.Available(r.Context(), chi.URLParam(r, "slug"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	sessionID := s.sessionID(r)
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	state, err := s.svc.Sessions.GetLimiterState(ctx, sessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("failed to load limiter state")
	}
	if state == nil {
		state = &ratelimit.State{}
	}

	appt, err := s.svc.Bookings.CreateBooking(ctx, chi.URLParam(r, "slug"), req, state)

	if saveErr := s.svc.Sessions.SetLimiterState(ctx, sessionID, state); saveErr != nil {
		s.logger.Warn().Err(saveErr).Str("session", sessionID).Msg("failed to save limiter state")
	}

	if err != nil {
		if errors.Is(err, domain.ErrRateLimitExceeded) {
			setRetryAfter(w, s.svc.Bookings.RetryAfter(state))
		}
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// sessionID keys the booking limiter: the session header when present,
// otherwise the caller address.
func (s *HTTPServer) sessionID(r *http.Request) string {
	if s.sessionHeader != "" {
		if id := strings.TrimSpace(r.Header.Get(s.sessionHeader)); id != "" {
			return "session:" + id
		}
	}
	return "addr:" + remoteHost(r)
}
