package trips

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kilianp07/evtrip/core/model"
)

// Update carries a partial edit. Nil fields are left untouched.
type Update struct {
	Weekday     *string  `json:"weekday,omitempty"`
	Time        *string  `json:"time,omitempty"`
	DateTime    *string  `json:"datetime,omitempty"`
	DistanceKM  *float64 `json:"km,omitempty"`
	EnergyKWh   *float64 `json:"kwh,omitempty"`
	Description *string  `json:"description,omitempty"`
	Active      *bool    `json:"active,omitempty"`
	Status      *string  `json:"status,omitempty"`
}

// DecodeUpdate builds an Update from a loosely typed field map such as a
// service call payload. Unknown keys, including id, type and created_at, are
// rejected.
func DecodeUpdate(fields map[string]any) (Update, error) {
	var upd Update
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &upd,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Update{}, err
	}
	if err := dec.Decode(fields); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return upd, nil
}

// Apply validates the edit against the variant of t and returns the merged
// trip. Fields that do not belong to t's variant are rejected.
func (u Update) Apply(t model.Trip, loc *time.Location) (model.Trip, error) {
	recurring := t.IsRecurring()
	if u.Weekday != nil {
		if !recurring {
			return t, fieldMismatch("weekday", t.Kind)
		}
		day, err := model.ParseWeekday(*u.Weekday)
		if err != nil {
			return t, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		t.Weekday = day
	}
	if u.Time != nil {
		if !recurring {
			return t, fieldMismatch("time", t.Kind)
		}
		t.Time = *u.Time
	}
	if u.Active != nil {
		if !recurring {
			return t, fieldMismatch("active", t.Kind)
		}
		t.Active = *u.Active
	}
	if u.DateTime != nil {
		if recurring {
			return t, fieldMismatch("datetime", t.Kind)
		}
		if _, err := model.ParseDateTime(*u.DateTime, loc); err != nil {
			return t, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		t.DateTime = *u.DateTime
	}
	if u.Status != nil {
		if recurring {
			return t, fieldMismatch("status", t.Kind)
		}
		s := model.Status(*u.Status)
		if !s.Valid() {
			return t, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *u.Status)
		}
		t.Status = s
	}
	km, kwh := t.DistanceKM, t.EnergyKWh
	if u.DistanceKM != nil {
		km = *u.DistanceKM
	}
	if u.EnergyKWh != nil {
		kwh = *u.EnergyKWh
	}
	if err := validateAmounts(km, kwh); err != nil {
		return t, err
	}
	t.DistanceKM, t.EnergyKWh = km, kwh
	if u.Description != nil {
		t.Description = *u.Description
	}
	return t, nil
}

func fieldMismatch(field string, kind model.Kind) error {
	return fmt.Errorf("%w: field %q does not apply to %s trips", ErrInvalidInput, field, kind)
}
