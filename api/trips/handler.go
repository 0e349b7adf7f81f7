// Package trips exposes the trip repositories and planners over HTTP.
package trips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/evtrip/app"
	"github.com/kilianp07/evtrip/core/journal"
	"github.com/kilianp07/evtrip/core/logger"
	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/planner"
	coretrips "github.com/kilianp07/evtrip/core/trips"
	"github.com/kilianp07/evtrip/pkg/export"
)

// Source tags commands received over HTTP in the journal and metrics.
const Source = "http"

const maxDays = 366

// Backend is the part of the service the API needs. *app.Service implements it.
type Backend interface {
	Commands() *app.Commands
	Coordinator(vehicleID string) (*app.Coordinator, error)
	Journal() journal.Store
}

// Handler serves the trip API.
type Handler struct {
	backend Backend
	log     logger.Logger
}

// NewRouter returns the API routes. Every route requires the bearer token
// when token is non-empty.
func NewRouter(b Backend, token string, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop{}
	}
	h := &Handler{backend: b, log: log}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(bearerAuth(token))
	r.Use(limitBody)

	r.Route("/api", func(r chi.Router) {
		r.Get("/vehicles", h.listVehicles)
		r.Get("/journal", h.queryJournal)
		r.Route("/vehicles/{vehicle}", func(r chi.Router) {
			r.Get("/trips", h.listTrips)
			r.Post("/trips/recurring", h.addRecurring)
			r.Post("/trips/punctual", h.addPunctual)
			r.Get("/trips/{id}", h.getTrip)
			r.Patch("/trips/{id}", h.editTrip)
			r.Delete("/trips/{id}", h.deleteTrip)
			r.Post("/trips/{id}/{action}", h.tripAction)
			r.Post("/pattern", h.importPattern)
			r.Get("/snapshot", h.snapshot)
			r.Post("/refresh", h.refresh)
			r.Get("/occurrences", h.occurrences)
			r.Get("/chart", h.chart)
		})
	})
	return r
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", coretrips.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	ids := h.backend.Commands().Registry().Vehicles()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": ids})
}

func (h *Handler) manager(w http.ResponseWriter, r *http.Request) (*coretrips.Manager, bool) {
	m, err := h.backend.Commands().Registry().Get(chi.URLParam(r, "vehicle"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return m, true
}

func (h *Handler) listTrips(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	var (
		list []model.Trip
		err  error
	)
	switch kind := r.URL.Query().Get("type"); kind {
	case "":
		list, err = m.List(r.Context())
	case string(model.KindRecurring):
		list, err = m.ListRecurring(r.Context())
	case string(model.KindPunctual):
		list, err = m.ListPunctual(r.Context())
	default:
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "type must be recurring or punctual")
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Trip{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	t, found, err := m.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		notFound(w, "trip "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) addRecurring(w http.ResponseWriter, r *http.Request) {
	var in app.RecurringInput
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.backend.Commands().AddRecurring(r.Context(), Source, chi.URLParam(r, "vehicle"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app.TripResult{TripID: id})
}

func (h *Handler) addPunctual(w http.ResponseWriter, r *http.Request) {
	var in app.PunctualInput
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.backend.Commands().AddPunctual(r.Context(), Source, chi.URLParam(r, "vehicle"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app.TripResult{TripID: id})
}

func (h *Handler) found(w http.ResponseWriter, id string, found bool, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		notFound(w, "trip "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, app.FoundResult{TripID: id, Found: true})
}

func (h *Handler) editTrip(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, &fields); err != nil {
		h.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	found, err := h.backend.Commands().EditTrip(r.Context(), Source, chi.URLParam(r, "vehicle"), id, fields)
	h.found(w, id, found, err)
}

func (h *Handler) deleteTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := h.backend.Commands().DeleteTrip(r.Context(), Source, chi.URLParam(r, "vehicle"), id)
	if err == nil && found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.found(w, id, found, err)
}

func (h *Handler) tripAction(w http.ResponseWriter, r *http.Request) {
	c := h.backend.Commands()
	var op func(ctx context.Context, source, vehicleID, tripID string) (bool, error)
	switch chi.URLParam(r, "action") {
	case "pause":
		op = c.PauseRecurring
	case "resume":
		op = c.ResumeRecurring
	case "complete":
		op = c.CompletePunctual
	case "cancel":
		op = c.CancelPunctual
	default:
		notFound(w, "unknown action")
		return
	}
	id := chi.URLParam(r, "id")
	found, err := op(r.Context(), Source, chi.URLParam(r, "vehicle"), id)
	h.found(w, id, found, err)
}

func (h *Handler) importPattern(w http.ResponseWriter, r *http.Request) {
	var in app.PatternInput
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.backend.Commands().ImportPattern(r.Context(), Source, chi.URLParam(r, "vehicle"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) coordinator(w http.ResponseWriter, r *http.Request) (*app.Coordinator, bool) {
	c, err := h.backend.Coordinator(chi.URLParam(r, "vehicle"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	s, ok := c.Latest()
	if !ok {
		s = c.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Refresh(r.Context()))
}

func parseDays(r *http.Request, def int) (int, error) {
	s := r.URL.Query().Get("days")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxDays {
		return 0, fmt.Errorf("%w: days must be within 1..%d", coretrips.ErrInvalidInput, maxDays)
	}
	return n, nil
}

// expand returns the occurrences of the next days days. A degraded result is
// still served and flagged with the X-Degraded header.
func (h *Handler) expand(w http.ResponseWriter, r *http.Request) (*app.Coordinator, []model.Occurrence, int, bool) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return nil, nil, 0, false
	}
	days, err := parseDays(r, c.Planner().Horizon())
	if err != nil {
		h.writeError(w, err)
		return nil, nil, 0, false
	}
	occ, err := c.Planner().ExpandDays(r.Context(), days)
	if err != nil {
		if !planner.IsDegraded(err) {
			h.writeError(w, err)
			return nil, nil, 0, false
		}
		h.log.Warnf("occurrences of %s degraded: %v", c.VehicleID(), err)
		w.Header().Set("X-Degraded", "true")
	}
	return c, occ, days, true
}

func (h *Handler) occurrences(w http.ResponseWriter, r *http.Request) {
	_, occ, _, ok := h.expand(w, r)
	if !ok {
		return
	}
	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, occ); err != nil {
			h.log.Errorf("write occurrences: %v", err)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, occ); err != nil {
			h.log.Errorf("write occurrences: %v", err)
		}
	default:
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "format must be json or csv")
	}
}

func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	c, occ, days, ok := h.expand(w, r)
	if !ok {
		return
	}
	p := c.Planner()
	daily := export.DailyEnergy(occ, p.Now(), days, p.Location(), c.ChargingPowerKW())
	page, err := export.EnergyChartHTML(c.VehicleID(), daily)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, page)
}

func (h *Handler) queryJournal(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := journal.Query{VehicleID: qs.Get("vehicle_id"), Command: qs.Get("command")}
	if s := qs.Get("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.Start = t
		}
	}
	if s := qs.Get("end"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			q.End = t
		}
	}
	if s := qs.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			q.Limit = n
		}
	}
	recs, err := h.backend.Journal().Query(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
