package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/evtrip/core/model"
)

// WriteJSON writes the occurrences to w in JSON format.
func WriteJSON(w io.Writer, occ []model.Occurrence) error {
	if occ == nil {
		occ = []model.Occurrence{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(occ)
}

// WriteCSV writes the occurrences to w in CSV format, one row per occurrence.
func WriteCSV(w io.Writer, occ []model.Occurrence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"trip_id", "source", "datetime", "kwh", "description"}); err != nil {
		return err
	}
	for _, o := range occ {
		rec := []string{
			o.TripID,
			string(o.Source),
			o.At.Format(time.RFC3339),
			strconv.FormatFloat(o.EnergyKWh, 'f', -1, 64),
			o.Description,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
