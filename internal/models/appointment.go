package models

import "time"

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Names of the storage-level unique indexes guarding active slots.
const (
	ConstraintProfessionalSlot = "unique_professional_booking_slot"
	ConstraintServiceSlot      = "unique_service_booking_slot"
)

// ActiveStatuses occupy a slot.
var ActiveStatuses = []string{StatusScheduled, StatusConfirmed}

func IsActiveStatus(status string) bool {
	return status == StatusScheduled || status == StatusConfirmed
}

func IsValidStatus(status string) bool {
	return IsActiveStatus(status) || status == StatusCancelled
}

// IsSlotConstraint reports whether a unique index name belongs to slot arbitration.
func IsSlotConstraint(name string) bool {
	return name == ConstraintProfessionalSlot || name == ConstraintServiceSlot
}

type Appointment struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	ProfessionalID *string   `json:"professional_id,omitempty"`
	ServiceID      string    `json:"service_id"`
	ClientName     string    `json:"client_name"`
	ClientPhone    string    `json:"client_phone"`
	ClientEmail    string    `json:"client_email,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *Appointment) IsActive() bool {
	return IsActiveStatus(a.Status)
}

// Slot returns the arbitration key of the appointment.
func (a *Appointment) Slot() SlotKey {
	return SlotKey{
		CompanyID:      a.CompanyID,
		ServiceID:      a.ServiceID,
		ProfessionalID: a.ProfessionalID,
		ScheduledAt:    a.ScheduledAt,
	}
}

// SlotKey identifies a bookable slot: a professional at an instant, or a
// company+service pair at an instant when no professional is involved.
type SlotKey struct {
	CompanyID      string
	ServiceID      string
	ProfessionalID *string
	ScheduledAt    time.Time
}

type AppointmentFilter struct {
	CompanyID      string
	ProfessionalID *string
	ServiceID      string
	From           time.Time
	To             time.Time
	Statuses       []string
}

// OptionalString maps "" to nil.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
