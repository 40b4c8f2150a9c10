package schedule

import (
	"time"

	"agenda/internal/models"
)

// Query selects the slots to resolve. Date carries the company location;
// only its calendar day is used.
type Query struct {
	Date           time.Time
	Grid           SlotGrid
	ServiceID      string
	ProfessionalID *string
}

// Resolve returns the free slot labels of the grid, in grid order.
//
// A slot is free when its interval overlaps no applicable block and no active
// appointment starts exactly at the slot for the queried professional, or for
// the queried service when no professional is given.
func Resolve(q Query, blocks []*models.TimeBlock, appointments []*models.Appointment) []string {
	free := make([]string, 0, q.Grid.Len())
	for _, slot := range q.Grid.Slots(q.Date) {
		if BlockedBy(slot.Interval, blocks, q.ProfessionalID) != nil {
			continue
		}
		if TakenBy(slot.Start, appointments, q.ServiceID, q.ProfessionalID) != nil {
			continue
		}
		free = append(free, slot.Label)
	}
	return free
}

// BlockedBy returns the first block applicable to professionalID that
// overlaps slot, or nil.
func BlockedBy(slot Interval, blocks []*models.TimeBlock, professionalID *string) *models.TimeBlock {
	for _, b := range blocks {
		if b == nil || !b.AppliesTo(professionalID) {
			continue
		}
		if Overlaps(slot.Start, slot.End, b.Start, b.End) {
			return b
		}
	}
	return nil
}

// TakenBy returns the active appointment occupying the slot starting at start.
func TakenBy(start time.Time, appointments []*models.Appointment, serviceID string, professionalID *string) *models.Appointment {
	for _, a := range appointments {
		if a == nil || !a.IsActive() || !a.ScheduledAt.Equal(start) {
			continue
		}
		if professionalID != nil {
			if a.ProfessionalID != nil && *a.ProfessionalID == *professionalID {
				return a
			}
			continue
		}
		if a.ProfessionalID == nil && a.ServiceID == serviceID {
			return a
		}
	}
	return nil
}
