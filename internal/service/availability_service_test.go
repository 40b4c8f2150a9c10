package service

import (
	"context"
	"errors"
	"testing"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mondayGrid = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
}

func TestAvailabilityService_Available(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	a := seedAcme(t, db)
	svc := NewAvailabilityService(db, nopLogger())
	req := AvailabilityRequest{Date: "2024-06-03", ServiceID: a.service.ID, ProfessionalID: a.professional.ID}

	t.Run("empty day is the full grid", func(t *testing.T) {
		got, err := svc.Available(ctx, "acme", req)
		require.NoError(t, err)
		assert.Equal(t, mondayGrid, got.Slots)
		assert.Equal(t, "UTC", got.Timezone)
		assert.Equal(t, 30, got.SlotMinutes)
		assert.False(t, got.Degraded)
	})

	t.Run("weekend has no slots", func(t *testing.T) {
		got, err := svc.Available(ctx, "acme", AvailabilityRequest{Date: "2024-06-08", ServiceID: a.service.ID})
		require.NoError(t, err)
		assert.Empty(t, got.Slots)
		assert.NotNil(t, got.Slots)
	})

	require.NoError(t, db.CreateTimeBlock(ctx, &models.TimeBlock{
		CompanyID: a.company.ID, Start: clock(14, 0), End: clock(15, 0), Reason: "team meeting",
	}))
	appt := &models.Appointment{
		CompanyID: a.company.ID, ProfessionalID: &a.professional.ID, ServiceID: a.service.ID,
		ClientName: "Maria", ClientPhone: "+5511999990000", ScheduledAt: clock(9, 30),
	}
	require.NoError(t, db.CreateAppointment(ctx, appt))

	t.Run("block and appointment remove their slots", func(t *testing.T) {
		got, err := svc.Available(ctx, "acme", req)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"09:00", "10:00", "10:30", "11:00", "11:30",
			"15:00", "15:30", "16:00", "16:30",
		}, got.Slots)
	})

	t.Run("other professional keeps the appointment slot", func(t *testing.T) {
		bob := &models.Professional{CompanyID: a.company.ID, Name: "Bob", IsActive: true}
		require.NoError(t, db.CreateProfessional(ctx, bob))

		got, err := svc.Available(ctx, "acme", AvailabilityRequest{Date: "2024-06-03", ServiceID: a.service.ID, ProfessionalID: bob.ID})
		require.NoError(t, err)
		assert.Contains(t, got.Slots, "09:30")
		assert.NotContains(t, got.Slots, "14:00")
	})

	t.Run("repeated queries agree", func(t *testing.T) {
		first, err := svc.Available(ctx, "acme", req)
		require.NoError(t, err)
		second, err := svc.Available(ctx, "acme", req)
		require.NoError(t, err)
		assert.Equal(t, first.Slots, second.Slots)
	})

	t.Run("cancelled appointment frees the slot", func(t *testing.T) {
		require.NoError(t, db.UpdateAppointmentStatus(ctx, appt.ID, models.StatusCancelled))
		got, err := svc.Available(ctx, "acme", req)
		require.NoError(t, err)
		assert.Contains(t, got.Slots, "09:30")
	})

	t.Run("unknown company", func(t *testing.T) {
		_, err := svc.Available(ctx, "nope", req)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := svc.Available(ctx, "acme", AvailabilityRequest{Date: "tomorrow", ServiceID: a.service.ID})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "date", verr.Field)

		_, err = svc.Available(ctx, "acme", AvailabilityRequest{Date: "2024-06-03"})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "service_id", verr.Field)
	})
}

func TestAvailabilityService_FailOpen(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	a := seedAcme(t, db)
	require.NoError(t, db.CreateTimeBlock(ctx, &models.TimeBlock{
		CompanyID: a.company.ID, Start: clock(9, 0), End: clock(12, 0),
	}))

	tests := []struct {
		name string
		repo *faultyRepo
	}{
		{"blocks unreadable", &faultyRepo{Repository: db, listBlocksErr: errors.New("no such table: time_blocks")}},
		{"appointments unreadable", &faultyRepo{Repository: db, listAppointmentsErr: errors.New("database is locked")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAvailabilityService(tt.repo, nopLogger())
			got, err := svc.Available(ctx, "acme", AvailabilityRequest{Date: "2024-06-03", ServiceID: uuid.NewString()})
			require.NoError(t, err)
			assert.True(t, got.Degraded)
			assert.Equal(t, mondayGrid, got.Slots)
		})
	}
}
