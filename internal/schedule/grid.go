package schedule

import (
	"fmt"
	"sort"
	"time"

	"agenda/internal/models"
)

type clock struct {
	hour   int
	minute int
}

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

func (c clock) minutes() int {
	return c.hour*60 + c.minute
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(models.TimeLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Slot is one grid entry materialized on a calendar day.
type Slot struct {
	Label string
	Interval
}

// SlotGrid is an ordered list of slot start times sharing one duration.
type SlotGrid struct {
	slots    []clock
	duration time.Duration
}

// NewSlotGrid parses "HH:MM" start times, keeping their order.
// Duration must be positive.
func NewSlotGrid(times []string, duration time.Duration) (SlotGrid, error) {
	if duration <= 0 {
		return SlotGrid{}, fmt.Errorf("slot duration must be positive, got %s", duration)
	}
	slots := make([]clock, 0, len(times))
	for _, raw := range times {
		h, m, err := ParseClock(raw)
		if err != nil {
			return SlotGrid{}, err
		}
		slots = append(slots, clock{hour: h, minute: m})
	}
	return SlotGrid{slots: slots, duration: duration}, nil
}

// GridFromWorkingHours emits every slot that fits entirely inside one of the
// day's shifts, in chronological order.
func GridFromWorkingHours(wh models.WorkingHours, day time.Weekday, duration time.Duration) (SlotGrid, error) {
	if duration <= 0 {
		return SlotGrid{}, fmt.Errorf("slot duration must be positive, got %s", duration)
	}
	step := int(duration / time.Minute)
	if step <= 0 {
		return SlotGrid{}, fmt.Errorf("slot duration must be at least a minute, got %s", duration)
	}

	var slots []clock
	for _, shift := range wh.Shifts(day) {
		sh, sm, err := ParseClock(shift.Start)
		if err != nil {
			return SlotGrid{}, err
		}
		eh, em, err := ParseClock(shift.End)
		if err != nil {
			return SlotGrid{}, err
		}
		end := eh*60 + em
		for cur := sh*60 + sm; cur+step <= end; cur += step {
			slots = append(slots, clock{hour: cur / 60, minute: cur % 60})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].minutes() < slots[j].minutes() })
	return SlotGrid{slots: slots, duration: duration}, nil
}

// Duration is the length of every slot in the grid.
func (g SlotGrid) Duration() time.Duration { return g.duration }

// Len is the number of slots.
func (g SlotGrid) Len() int { return len(g.slots) }

// Times returns the "HH:MM" labels in grid order.
func (g SlotGrid) Times() []string {
	out := make([]string, len(g.slots))
	for i, c := range g.slots {
		out[i] = c.String()
	}
	return out
}

// Has reports whether label ("HH:MM") is a slot start of the grid.
func (g SlotGrid) Has(label string) bool {
	h, m, err := ParseClock(label)
	if err != nil {
		return false
	}
	for _, c := range g.slots {
		if c.hour == h && c.minute == m {
			return true
		}
	}
	return false
}

// Slots materializes the grid on the calendar day of date, in date's location.
func (g SlotGrid) Slots(date time.Time) []Slot {
	y, mo, d := date.Date()
	loc := date.Location()
	out := make([]Slot, len(g.slots))
	for i, c := range g.slots {
		start := time.Date(y, mo, d, c.hour, c.minute, 0, 0, loc)
		out[i] = Slot{Label: c.String(), Interval: Interval{Start: start, End: start.Add(g.duration)}}
	}
	return out
}

// SlotAt materializes one slot on the day of date. label need not be on a grid.
func SlotAt(date time.Time, label string, duration time.Duration) (Slot, error) {
	h, m, err := ParseClock(label)
	if err != nil {
		return Slot{}, err
	}
	y, mo, d := date.Date()
	start := time.Date(y, mo, d, h, m, 0, 0, date.Location())
	c := clock{hour: h, minute: m}
	return Slot{Label: c.String(), Interval: Interval{Start: start, End: start.Add(duration)}}, nil
}
