package models

import "time"

const (
	// DefaultSlotMinutes is the grid step when a company does not set one.
	DefaultSlotMinutes = 30

	// BookingRateLimitAttempts bookings allowed per session window
	BookingRateLimitAttempts = 3

	// BookingRateLimitWindow resets the session counter after inactivity
	BookingRateLimitWindow = 10 * time.Minute

	// DefaultSessionTTL keeps session limiter state around a bit longer than the window
	DefaultSessionTTL = 30 * time.Minute

	// DefaultExportRangeDays size of the export window when none is given
	DefaultExportRangeDays = 30

	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
