package trips

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patternYAML = `
wednesday:
  - time: "18:00"
    km: 5
    kwh: 1
    description: Gym
monday:
  - time: "08:00"
    km: 24
    kwh: 3.6
    description: Work
  - time: "17:30"
    km: 24
    kwh: 3.6
    description: Home
`

func TestLoadWeeklyPattern(t *testing.T) {
	p, err := LoadWeeklyPattern(strings.NewReader(patternYAML))
	require.NoError(t, err)
	assert.Len(t, p["monday"], 2)
	assert.Equal(t, "Gym", p["wednesday"][0].Description)

	p, err = LoadWeeklyPattern(strings.NewReader(`{"friday":[{"time":"07:00","km":1,"kwh":0.2,"description":"x"}]}`))
	require.NoError(t, err)
	assert.Len(t, p["friday"], 1)

	p, err = LoadWeeklyPattern(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestImportWeeklyPatternClearsRecurringOnly(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	old, _ := m.AddRecurring(ctx, "sunday", "10:00", 1, 1, "old")
	pun, _ := m.AddPunctual(ctx, "2025-11-20T15:00:00", 1, 1, "keep")

	p, err := LoadWeeklyPattern(strings.NewReader(patternYAML))
	require.NoError(t, err)
	res, err := m.ImportWeeklyPattern(ctx, p, true)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, res.Deleted)
	require.Len(t, res.Added, 3)
	assert.True(t, strings.HasPrefix(res.Added[0], "rec_mon_"))
	assert.True(t, strings.HasPrefix(res.Added[2], "rec_wed_"))

	_, ok, _ := m.Get(ctx, pun)
	assert.True(t, ok, "punctual trips survive an import")
	rec, _ := m.ListRecurring(ctx)
	assert.Len(t, rec, 3)
}

func TestImportWeeklyPatternKeepsExisting(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	_, _ = m.AddRecurring(ctx, "sunday", "10:00", 1, 1, "old")
	res, err := m.ImportWeeklyPattern(ctx, WeeklyPattern{"friday": {{Time: "07:00", KM: 1, KWh: 1}}}, false)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	rec, _ := m.ListRecurring(ctx)
	assert.Len(t, rec, 2)
}

func TestImportWeeklyPatternStopsOnInvalidDay(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	p := WeeklyPattern{
		"monday": {{Time: "08:00", KM: 1, KWh: 1}},
		"someday": {{Time: "08:00", KM: 1, KWh: 1}},
	}
	res, err := m.ImportWeeklyPattern(ctx, p, true)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Len(t, res.Added, 1)
	rec, _ := m.ListRecurring(ctx)
	assert.Len(t, rec, 1, "earlier steps stay applied")
}
