package core

import (
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSpec(t *testing.T, times []string, tz string, randomize bool) ScheduleSpec {
	t.Helper()
	spec, err := ParseScheduleSpec(times, tz, randomize)
	require.NoError(t, err)
	return spec
}

func utc(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts.UTC()
}

func reverseShuffler(ts []time.Time) {
	slices.Reverse(ts)
}

func TestParseSlotTime(t *testing.T) {
	valid := map[string]SlotTime{
		"00:00": {0, 0},
		"9:05":  {9, 5},
		"23:59": {23, 59},
		" 7:30": {7, 30},
	}
	for in, want := range valid {
		got, err := ParseSlotTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "noon", "24:00", "12:60", "-1:00", "+1:00", "1:2:3", "123:00", "12:"} {
		_, err := ParseSlotTime(in)
		assert.ErrorIs(t, err, ErrInvalidSchedule, in)
	}
}

func TestParseScheduleSpec(t *testing.T) {
	spec := mustSpec(t, []string{"09:00", "18:30"}, "", false)
	assert.Equal(t, time.UTC, spec.Location)
	assert.Equal(t, []SlotTime{{9, 0}, {18, 30}}, spec.Times)

	_, err := ParseScheduleSpec([]string{"09:00"}, "Mars/Olympus_Mons", false)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = ParseScheduleSpec([]string{"09:00", "25:00"}, "UTC", false)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestResolveDayAcrossSpringForward(t *testing.T) {
	spec := mustSpec(t, []string{"01:30", "12:00"}, "America/New_York", false)
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, spec.Location)

	got := ResolveDay(day, spec, nil)

	assert.Equal(t, []time.Time{utc("2026-03-08T06:30:00Z"), utc("2026-03-08T16:00:00Z")}, got)
}

func TestResolveDayKeepsConfiguredOrder(t *testing.T) {
	spec := mustSpec(t, []string{"18:00", "09:00"}, "UTC", false)

	got := ResolveDay(utc("2026-01-10T00:00:00Z"), spec, reverseShuffler)

	assert.Equal(t, []time.Time{utc("2026-01-10T18:00:00Z"), utc("2026-01-10T09:00:00Z")}, got)
}

func TestResolveDayRandomizedIsPermutation(t *testing.T) {
	plain := mustSpec(t, []string{"08:00", "12:00", "20:00"}, "Europe/Berlin", false)
	random := plain
	random.Randomize = true
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, plain.Location)

	want := ResolveDay(day, plain, nil)
	got := ResolveDay(day, random, reverseShuffler)

	assert.ElementsMatch(t, want, got)
	assert.Equal(t, want[0], got[2])
	assert.ElementsMatch(t, want, ResolveDay(day, random, DefaultShuffler))
}

func TestResolveDayEmptyAndDuplicates(t *testing.T) {
	empty := mustSpec(t, nil, "UTC", false)
	assert.Empty(t, ResolveDay(utc("2026-01-10T00:00:00Z"), empty, nil))

	dup := mustSpec(t, []string{"09:00", "09:00"}, "UTC", false)
	got := ResolveDay(utc("2026-01-10T00:00:00Z"), dup, nil)
	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
}

func TestNextDue(t *testing.T) {
	spec := mustSpec(t, []string{"09:00", "18:00"}, "UTC", false)

	tests := []struct {
		name string
		now  string
		want string
	}{
		{"before first slot", "2026-01-10T06:00:00Z", "2026-01-10T09:00:00Z"},
		{"exactly at slot", "2026-01-10T09:00:00Z", "2026-01-10T09:00:00Z"},
		{"between slots", "2026-01-10T10:00:00Z", "2026-01-10T18:00:00Z"},
		{"after last slot rolls to tomorrow", "2026-01-10T19:00:00Z", "2026-01-11T09:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextDue(utc(tt.now), spec, nil)
			require.True(t, ok)
			assert.Equal(t, utc(tt.want), got)
		})
	}
}

func TestNextDueUsesScheduleTimezoneForToday(t *testing.T) {
	spec := mustSpec(t, []string{"09:00"}, "Asia/Tokyo", false)

	// 16:00Z on the 10th is already 01:00 on the 11th in Tokyo.
	got, ok := NextDue(utc("2026-01-10T16:00:00Z"), spec, nil)

	require.True(t, ok)
	assert.Equal(t, utc("2026-01-11T00:00:00Z"), got)
}

func TestNextDueRandomizedPicksEarliest(t *testing.T) {
	spec := mustSpec(t, []string{"08:00", "12:00", "20:00"}, "UTC", true)

	got, ok := NextDue(utc("2026-01-10T07:00:00Z"), spec, reverseShuffler)

	require.True(t, ok)
	assert.Equal(t, utc("2026-01-10T08:00:00Z"), got)
}

func TestNextDueEmptySchedule(t *testing.T) {
	spec := mustSpec(t, []string{}, "UTC", false)

	_, ok := NextDue(utc("2026-01-10T07:00:00Z"), spec, nil)

	assert.False(t, ok)
}

func TestUpcomingSlots(t *testing.T) {
	spec := mustSpec(t, []string{"09:00", "18:00"}, "UTC", false)

	got := UpcomingSlots(utc("2026-01-10T12:00:00Z"), 2, spec, nil)

	assert.Equal(t, []time.Time{
		utc("2026-01-10T18:00:00Z"),
		utc("2026-01-11T09:00:00Z"),
		utc("2026-01-11T18:00:00Z"),
	}, got)
}
