package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Company struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Timezone       string       `json:"timezone"`
	SlotMinutes    int          `json:"slot_minutes"`
	WorkingHours   WorkingHours `json:"working_hours"`
	PlanID         string       `json:"plan_id,omitempty"`
	TelegramChatID int64        `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Location resolves the company timezone, falling back to UTC.
func (c *Company) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotDuration returns the grid step, DefaultSlotMinutes when unset.
func (c *Company) SlotDuration() time.Duration {
	if c.SlotMinutes <= 0 {
		return DefaultSlotMinutes * time.Minute
	}
	return time.Duration(c.SlotMinutes) * time.Minute
}

// Hours returns the configured working hours or the defaults.
func (c *Company) Hours() WorkingHours {
	if len(c.WorkingHours) == 0 {
		return DefaultWorkingHours()
	}
	return c.WorkingHours
}

// Shift is a contiguous working period within a day, "HH:MM" wall clock.
type Shift struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// WorkingHours maps a lowercase weekday name ("monday") to its shifts.
type WorkingHours map[string][]Shift

func (w WorkingHours) Shifts(day time.Weekday) []Shift {
	return w[strings.ToLower(day.String())]
}

// DefaultWorkingHours is Monday to Friday with a lunch break.
func DefaultWorkingHours() WorkingHours {
	shifts := []Shift{{Start: "09:00", End: "12:00"}, {Start: "14:00", End: "17:00"}}
	wh := make(WorkingHours, 5)
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		wh[strings.ToLower(day.String())] = append([]Shift(nil), shifts...)
	}
	return wh
}

type Professional struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}
