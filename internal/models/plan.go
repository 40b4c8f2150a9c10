package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type FeatureKey string

const (
	FeatureOnlineBooking         FeatureKey = "online_booking"
	FeatureTelegramNotifications FeatureKey = "telegram_notifications"
	FeatureExport                FeatureKey = "export"
	FeatureReports               FeatureKey = "reports"
	FeatureCustomBranding        FeatureKey = "custom_branding"
	FeatureMaxServices           FeatureKey = "max_services"
	FeatureSupportLevel          FeatureKey = "support_level"
)

type FeatureKind string

const (
	FeatureKindBool   FeatureKind = "bool"
	FeatureKindNumber FeatureKind = "number"
	FeatureKindText   FeatureKind = "text"
)

// FeatureValue is a tagged value: exactly one of bool, number or text.
type FeatureValue struct {
	kind   FeatureKind
	flag   bool
	number float64
	text   string
}

func BoolFeature(v bool) FeatureValue      { return FeatureValue{kind: FeatureKindBool, flag: v} }
func NumberFeature(v float64) FeatureValue { return FeatureValue{kind: FeatureKindNumber, number: v} }
func TextFeature(v string) FeatureValue    { return FeatureValue{kind: FeatureKindText, text: v} }

func (v FeatureValue) Kind() FeatureKind { return v.kind }

func (v FeatureValue) Bool() (bool, bool) {
	return v.flag, v.kind == FeatureKindBool
}

func (v FeatureValue) Number() (float64, bool) {
	return v.number, v.kind == FeatureKindNumber
}

func (v FeatureValue) Text() (string, bool) {
	return v.text, v.kind == FeatureKindText
}

// MarshalJSON encodes the bare value: true, 10, "priority".
func (v FeatureValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FeatureKindBool:
		return json.Marshal(v.flag)
	case FeatureKindNumber:
		return json.Marshal(v.number)
	case FeatureKindText:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty feature value")
	}
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("failed to decode bool feature: %w", err)
		}
		*v = BoolFeature(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode text feature: %w", err)
		}
		*v = TextFeature(s)
	case 'n':
		*v = FeatureValue{}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported feature value %s: %w", string(data), err)
		}
		*v = NumberFeature(n)
	}
	return nil
}

type Features map[FeatureKey]FeatureValue

type Plan struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	Description            string          `json:"description,omitempty"`
	MaxProfessionals       int             `json:"max_professionals"`
	MaxMonthlyAppointments int             `json:"max_monthly_appointments"`
	OverageFee             decimal.Decimal `json:"overage_fee"`
	Features               Features        `json:"features"`
	CreatedAt              time.Time       `json:"created_at"`
}

// HasFeature is true only for features explicitly set to boolean true.
func (p *Plan) HasFeature(key FeatureKey) bool {
	if p == nil || p.Features == nil {
		return false
	}
	v, ok := p.Features[key]
	if !ok {
		return false
	}
	b, isBool := v.Bool()
	return isBool && b
}

// FeatureNumber returns a numeric feature; ok is false when the plan is nil
// or the feature is unset or not a number.
func (p *Plan) FeatureNumber(key FeatureKey) (float64, bool) {
	if p == nil || p.Features == nil {
		return 0, false
	}
	v, ok := p.Features[key]
	if !ok {
		return 0, false
	}
	return v.Number()
}

const (
	SubscriptionTrial     = "trial"
	SubscriptionActive    = "active"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
)

type UsageKind string

const (
	UsageAppointments  UsageKind = "appointments"
	UsageProfessionals UsageKind = "professionals"
)

// Usage is a company's consumption against its plan for one billing cycle.
type Usage struct {
	Plan                *Plan     `json:"plan,omitempty"`
	Professionals       int       `json:"professionals"`
	MonthlyAppointments int       `json:"monthly_appointments"`
	CycleStart          time.Time `json:"cycle_start"`
	CycleEnd            time.Time `json:"cycle_end"`
}

type Overage struct {
	Kind     UsageKind       `json:"kind"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

func (u *Usage) current(kind UsageKind) (used, limit int) {
	switch kind {
	case UsageProfessionals:
		return u.Professionals, u.Plan.MaxProfessionals
	case UsageAppointments:
		return u.MonthlyAppointments, u.Plan.MaxMonthlyAppointments
	}
	return 0, 0
}

// IsOverLimit reports usage strictly above the plan quota. No plan, no limit.
func (u *Usage) IsOverLimit(kind UsageKind) bool {
	if u.Plan == nil {
		return false
	}
	used, limit := u.current(kind)
	return used > limit
}

func (u *Usage) CanAddProfessional() bool {
	if u.Plan == nil {
		return false
	}
	return u.Professionals < u.Plan.MaxProfessionals
}

func (u *Usage) CanAddAppointment() bool {
	if u.Plan == nil {
		return false
	}
	return u.MonthlyAppointments < u.Plan.MaxMonthlyAppointments
}

// Overages lists billable excess per kind; kinds within quota are omitted.
func (u *Usage) Overages() []Overage {
	if u.Plan == nil {
		return nil
	}
	var out []Overage
	for _, kind := range []UsageKind{UsageAppointments, UsageProfessionals} {
		used, limit := u.current(kind)
		if used <= limit {
			continue
		}
		qty := used - limit
		out = append(out, Overage{
			Kind:     kind,
			Quantity: qty,
			Amount:   u.Plan.OverageFee.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	return out
}
