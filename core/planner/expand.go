package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/evtrip/core/logger"
	"github.com/kilianp07/evtrip/core/model"
)

// DefaultHorizonDays is the expansion window used when none is configured.
const DefaultHorizonDays = 7

// Expand turns the active recurring trips into dated occurrences covering
// [today, today+days) in loc. Paused trips, unknown weekdays and malformed
// times are skipped; a bad record never prevents its siblings from expanding.
func Expand(trips []model.Trip, today time.Time, days int, loc *time.Location, log logger.Logger) []model.Occurrence {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop{}
	}
	y, m, d := today.In(loc).Date()
	var out []model.Occurrence
	for _, t := range trips {
		if !t.IsRecurring() || !t.Active {
			continue
		}
		wd, ok := t.Weekday.TimeWeekday()
		if !ok {
			log.Warnf("skipping trip %s: unknown weekday %q", t.ID, t.Weekday)
			continue
		}
		tod, err := model.ParseTimeOfDay(t.Time)
		if err != nil {
			log.Warnf("skipping trip %s: %v", t.ID, err)
			continue
		}
		for i := 0; i < days; i++ {
			day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
			if day.Weekday() != wd {
				continue
			}
			out = append(out, model.Occurrence{
				TripID:      t.ID,
				Description: t.Description,
				At:          tod.On(day, loc),
				EnergyKWh:   t.EnergyKWh,
				Source:      model.SourceRecurring,
			})
		}
	}
	return out
}

// PunctualOccurrences converts the pending punctual trips into occurrences.
// Completed and cancelled trips are left out. Records whose datetime cannot be
// parsed are skipped and returned as errors.
func PunctualOccurrences(trips []model.Trip, loc *time.Location) ([]model.Occurrence, []error) {
	var (
		out  []model.Occurrence
		errs []error
	)
	for _, t := range trips {
		if !t.IsPunctual() || t.Status != model.StatusPending {
			continue
		}
		at, err := model.ParseDateTime(t.DateTime, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("trip %s: %w", t.ID, err))
			continue
		}
		out = append(out, model.Occurrence{
			TripID:      t.ID,
			Description: t.Description,
			At:          at,
			EnergyKWh:   t.EnergyKWh,
			Source:      model.SourcePunctual,
		})
	}
	return out, errs
}

// Merge concatenates recurring then punctual occurrences and sorts them by
// time. Equal times keep the concatenation order.
func Merge(recurring, punctual []model.Occurrence) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(recurring)+len(punctual))
	out = append(out, recurring...)
	out = append(out, punctual...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
