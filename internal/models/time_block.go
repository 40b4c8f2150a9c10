package models

import "time"

// TimeBlock is an interval in which no bookings may occur. A nil
// ProfessionalID blocks the whole company.
type TimeBlock struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	ProfessionalID *string   `json:"professional_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AppliesTo reports whether the block constrains the given professional.
// Company-wide blocks apply to everyone; scoped blocks only to their owner.
func (b *TimeBlock) AppliesTo(professionalID *string) bool {
	if b.ProfessionalID == nil {
		return true
	}
	return professionalID != nil && *b.ProfessionalID == *professionalID
}

type TimeBlockFilter struct {
	CompanyID      string
	ProfessionalID *string
	From           time.Time
	To             time.Time
}
