package core

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// SlotTime is a wall-clock time of day.
type SlotTime struct {
	Hour   int
	Minute int
}

func (t SlotTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ScheduleSpec is the validated daily upload schedule.
type ScheduleSpec struct {
	Times     []SlotTime
	Location  *time.Location
	Randomize bool
}

// ParseSlotTime parses a 24h "HH:MM" string.
func ParseSlotTime(value string) (SlotTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return SlotTime{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSchedule, value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || !isClockField(hh) || hour > 23 {
		return SlotTime{}, fmt.Errorf("%w: hour in %q must be 0-23", ErrInvalidSchedule, value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || !isClockField(mm) || minute > 59 {
		return SlotTime{}, fmt.Errorf("%w: minute in %q must be 0-59", ErrInvalidSchedule, value)
	}
	return SlotTime{Hour: hour, Minute: minute}, nil
}

func isClockField(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseScheduleSpec validates the configured times and timezone.
// An empty timezone means UTC.
func ParseScheduleSpec(times []string, timezone string, randomize bool) (ScheduleSpec, error) {
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return ScheduleSpec{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, timezone, err)
	}
	slots := make([]SlotTime, 0, len(times))
	for _, raw := range times {
		slot, err := ParseSlotTime(raw)
		if err != nil {
			return ScheduleSpec{}, err
		}
		slots = append(slots, slot)
	}
	return ScheduleSpec{Times: slots, Location: loc, Randomize: randomize}, nil
}

// Shuffler permutes instants in place.
type Shuffler func([]time.Time)

// DefaultShuffler is a uniform random permutation.
func DefaultShuffler(ts []time.Time) {
	rand.Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })
}

// ResolveDay returns the UTC instants of every slot on the calendar date of
// day, interpreted in the schedule's timezone. The order follows the
// configured times unless the schedule is randomized, in which case the
// order carries no meaning.
func ResolveDay(day time.Time, spec ScheduleSpec, shuffle Shuffler) []time.Time {
	if len(spec.Times) == 0 {
		return nil
	}
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	out := make([]time.Time, 0, len(spec.Times))
	for _, slot := range spec.Times {
		// time.Date applies the zone's offset for that exact wall-clock time,
		// so DST transitions are honoured. Wall times inside a spring-forward
		// gap are normalized forward by the time package.
		local := time.Date(y, m, d, slot.Hour, slot.Minute, 0, 0, loc)
		out = append(out, local.UTC())
	}
	if spec.Randomize {
		if shuffle == nil {
			shuffle = DefaultShuffler
		}
		shuffle(out)
	}
	return out
}

// NextDue picks the earliest slot at or after now, looking at today and then
// tomorrow in the schedule's timezone. ok is false when the schedule has no
// slots at all.
func NextDue(now time.Time, spec ScheduleSpec, shuffle Shuffler) (time.Time, bool) {
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	now = now.UTC()
	today := now.In(loc)
	candidates := upcoming(ResolveDay(today, spec, shuffle), now)
	if len(candidates) == 0 {
		tomorrow := time.Date(today.Year(), today.Month(), today.Day()+1, 12, 0, 0, 0, loc)
		candidates = upcoming(ResolveDay(tomorrow, spec, shuffle), now)
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}
	next := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(next) {
			next = c
		}
	}
	return next, true
}

// UpcomingSlots lists the resolved instants for the given number of days
// starting with the calendar date of from, dropping instants before from.
func UpcomingSlots(from time.Time, days int, spec ScheduleSpec, shuffle Shuffler) []time.Time {
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	start := from.In(loc)
	var out []time.Time
	for i := 0; i < days; i++ {
		day := time.Date(start.Year(), start.Month(), start.Day()+i, 12, 0, 0, 0, loc)
		out = append(out, upcoming(ResolveDay(day, spec, shuffle), from.UTC())...)
	}
	return out
}

func upcoming(instants []time.Time, now time.Time) []time.Time {
	var out []time.Time
	for _, t := range instants {
		if !t.Before(now) {
			out = append(out, t)
		}
	}
	return out
}
