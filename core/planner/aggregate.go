package planner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/evtrip/core/model"
)

// DefaultChargingPowerKW is used when a vehicle does not configure one.
const DefaultChargingPowerKW = 3.6

// NextAfter returns the first occurrence strictly later than now. occ must be
// sorted.
func NextAfter(occ []model.Occurrence, now time.Time) *model.Occurrence {
	for i := range occ {
		if occ[i].At.After(now) {
			o := occ[i]
			return &o
		}
	}
	return nil
}

// EnergyOn sums the energy of the occurrences that fall on the calendar date
// of day, both compared in loc.
func EnergyOn(occ []model.Occurrence, day time.Time, loc *time.Location) float64 {
	var kwh []float64
	for _, o := range occ {
		if model.SameDate(o.At, day, loc) {
			kwh = append(kwh, o.EnergyKWh)
		}
	}
	return floats.Sum(kwh)
}

// MaxChargingHours is the largest value HoursFor reports.
const MaxChargingHours = math.MaxInt32

// ErrHoursOutOfRange is returned by ChargingHours when the quotient does not
// fit MaxChargingHours.
var ErrHoursOutOfRange = errors.New("charging hours out of range")

// HoursFor returns the whole hours needed to charge kwh at powerKW. It is 0
// when there is nothing to charge, the power is not positive or the result is
// out of range.
func HoursFor(kwh, powerKW float64) int {
	h, _ := ChargingHours(kwh, powerKW)
	return h
}

// ChargingHours is HoursFor that also reports an out of range quotient.
func ChargingHours(kwh, powerKW float64) (int, error) {
	if powerKW <= 0 || kwh <= 0 || math.IsNaN(kwh) || math.IsNaN(powerKW) {
		return 0, nil
	}
	h := math.Ceil(kwh / powerKW)
	if math.IsInf(h, 0) || math.IsNaN(h) || h > MaxChargingHours {
		return 0, fmt.Errorf("%w: %g kWh at %g kW", ErrHoursOutOfRange, kwh, powerKW)
	}
	return int(h), nil
}
