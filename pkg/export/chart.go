package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/planner"
)

// DayEnergy is the energy needed on one calendar day.
type DayEnergy struct {
	Date  time.Time `json:"date"`
	KWh   float64   `json:"kwh"`
	Hours int       `json:"hours"`
}

// DailyEnergy sums occ per day for days consecutive days starting on the
// date of start in loc.
func DailyEnergy(occ []model.Occurrence, start time.Time, days int, loc *time.Location, powerKW float64) []DayEnergy {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := start.In(loc).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	out := make([]DayEnergy, 0, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		kwh := planner.EnergyOn(occ, day, loc)
		out = append(out, DayEnergy{Date: day, KWh: kwh, Hours: planner.HoursFor(kwh, powerKW)})
	}
	return out
}

// EnergyChartHTML renders the daily energy and charging hours of a vehicle
// as a standalone HTML page.
func EnergyChartHTML(vehicleID string, days []DayEnergy) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Energy needed", Subtitle: vehicleID}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Day"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kWh / h"}),
	)

	var (
		xAxis []string
		kwh   []opts.BarData
		hours []opts.BarData
	)
	for _, d := range days {
		xAxis = append(xAxis, d.Date.Format("Mon 2006-01-02"))
		kwh = append(kwh, opts.BarData{Value: d.KWh})
		hours = append(hours, opts.BarData{Value: d.Hours})
	}
	bar.SetXAxis(xAxis).
		AddSeries("kWh", kwh).
		AddSeries("Charging hours", hours)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render chart: %v", err)
	}
	return buf.String(), nil
}
