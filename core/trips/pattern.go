package trips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/evtrip/core/model"
)

// PatternEntry is one trip of a weekly pattern.
type PatternEntry struct {
	Time        string  `json:"time" yaml:"time"`
	KM          float64 `json:"km" yaml:"km"`
	KWh         float64 `json:"kwh" yaml:"kwh"`
	Description string  `json:"description" yaml:"description"`
}

// WeeklyPattern maps weekday labels to the trips made on that day.
type WeeklyPattern map[string][]PatternEntry

// LoadWeeklyPattern decodes a pattern document. YAML and JSON are accepted.
func LoadWeeklyPattern(r io.Reader) (WeeklyPattern, error) {
	var p WeeklyPattern
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return WeeklyPattern{}, nil
		}
		return nil, fmt.Errorf("decode weekly pattern: %w", err)
	}
	if p == nil {
		p = WeeklyPattern{}
	}
	return p, nil
}

// days returns the keys of p with known weekdays first in calendar order and
// any other keys after them, sorted.
func (p WeeklyPattern) days() []string {
	seen := make(map[string]bool, len(p))
	out := make([]string, 0, len(p))
	for _, d := range model.Weekdays {
		if _, ok := p[string(d)]; ok {
			out = append(out, string(d))
			seen[string(d)] = true
		}
	}
	var rest []string
	for k := range p {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// ImportResult lists what an import changed.
type ImportResult struct {
	Deleted []string `json:"deleted"`
	Added   []string `json:"added"`
}

// ImportWeeklyPattern optionally deletes every recurring trip and then adds
// one recurring trip per pattern entry. Each step is its own mutation: a
// failure stops the import and leaves the earlier steps applied.
func (m *Manager) ImportWeeklyPattern(ctx context.Context, p WeeklyPattern, clearExisting bool) (ImportResult, error) {
	var res ImportResult
	if clearExisting {
		existing, err := m.ListRecurring(ctx)
		if err != nil {
			return res, err
		}
		for _, t := range existing {
			ok, err := m.Delete(ctx, t.ID)
			if err != nil {
				return res, err
			}
			if ok {
				res.Deleted = append(res.Deleted, t.ID)
			}
		}
	}
	for _, day := range p.days() {
		for i, e := range p[day] {
			id, err := m.AddRecurring(ctx, day, e.Time, e.KM, e.KWh, e.Description)
			if err != nil {
				return res, fmt.Errorf("import %s[%d]: %w", day, i, err)
			}
			res.Added = append(res.Added, id)
		}
	}
	m.log.Infof("imported weekly pattern for %s: %d deleted, %d added", m.vehicleID, len(res.Deleted), len(res.Added))
	return res, nil
}
