package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avstrong/slotreserve/internal/handoff"
	"github.com/avstrong/slotreserve/internal/reservation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxBodyBytes      = 64 << 10
)

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

type capacityBody struct {
	Error     string                `json:"error"`
	Slot      reservation.SlotKey   `json:"slot"`
	Occupancy reservation.Occupancy `json:"occupancy"`
}

type submitResponse struct {
	Booking reservation.Booking `json:"booking"`
	Handoff handoff.Handoff     `json:"handoff"`
}

type reservationsResponse struct {
	Reservations []reservation.Reservation `json:"reservations"`
}

type slotsResponse struct {
	Date     string                  `json:"date"`
	Timezone string                  `json:"timezone"`
	Slots    []reservation.Occupancy `json:"slots"`
}

type servicesResponse struct {
	Services []reservation.MenuItem `json:"services"`
	Timezone string                 `json:"timezone"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (reservation.Request, bool) {
	var req reservation.Request

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		msg := "body must be a JSON reservation request"

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = fmt.Sprintf("body must not exceed %d bytes", maxBodyBytes)
		}

		s.writeJSON(w, http.StatusBadRequest, errorBody{
			Error:  reservation.KindValidation,
			Fields: map[string][]string{"body": {msg}},
			Reason: "",
		})

		return reservation.Request{}, false
	}

	return req, true
}

// writeRejection maps the engine's error kinds onto HTTP statuses.
func (s *Server) writeRejection(w http.ResponseWriter, err error) {
	if ve := reservation.IsValidationError(err); ve != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{
			Error:  reservation.KindValidation,
			Fields: ve.Fields(),
			Reason: "",
		})

		return
	}

	if ce := reservation.IsCapacityError(err); ce != nil {
		s.writeJSON(w, http.StatusConflict, capacityBody{
			Error:     reservation.KindCapacity,
			Slot:      ce.Slot,
			Occupancy: ce.SlotOccupancy(),
		})

		return
	}

	s.l.LogErrorf("Request failed: %v", err.Error())

	reason := "internal fault"
	if ie := reservation.IsInternalError(err); ie != nil {
		reason = ie.Reason
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(s.conf.RetryAfter.Seconds())))
	s.writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:  reservation.KindInternal,
		Fields: nil,
		Reason: reason,
	})
}

func (s *Server) createReservationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	if key := r.Header.Get(idempotencyHeader); key != "" {
		ctx = reservation.NewContextWithIdempotencyKey(ctx, key)
	}

	booking, err := s.engine.Submit(ctx, req)
	if err != nil {
		s.writeRejection(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, submitResponse{
		Booking: booking,
		Handoff: s.handoff.For(booking),
	})
}

func (s *Server) listReservationsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Reservations(r.Context())
	if err != nil {
		s.writeRejection(w, err)

		return
	}

	if list == nil {
		list = []reservation.Reservation{}
	}

	s.writeJSON(w, http.StatusOK, reservationsResponse{Reservations: list})
}

func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.engine.Today().String()
	}

	slots, err := s.engine.Availability(r.Context(), date)
	if err != nil {
		s.writeRejection(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, slotsResponse{Date: date, Timezone: s.engine.Timezone(), Slots: slots})
}

func (s *Server) servicesHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, servicesResponse{Services: s.engine.Menu(), Timezone: s.engine.Timezone()})
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) route(pattern, route string, h http.Handler) {
	s.router.Handle(pattern, s.applyMiddlewares(
		h,
		s.recoverMiddleware(),
		s.loggerMiddleware(),
		s.traceMiddleware(route),
		s.metricsMiddleware(route),
		s.requestIDMiddleware(),
	))
}

func (s *Server) addRoutes() {
	s.route("POST /api/reservations/v1", "/api/reservations/v1", http.HandlerFunc(s.createReservationHandler))
	s.route("GET /api/reservations/v1", "/api/reservations/v1", http.HandlerFunc(s.listReservationsHandler))
	s.route("GET /api/slots/v1", "/api/slots/v1", http.HandlerFunc(s.slotsHandler))
	s.route("GET /api/services/v1", "/api/services/v1", http.HandlerFunc(s.servicesHandler))
	s.route(
		fmt.Sprintf("GET %s", s.conf.LivenessEndpoint),
		s.conf.LivenessEndpoint,
		http.HandlerFunc(s.livenessHandler),
	)
	s.router.Handle(fmt.Sprintf("GET %s", s.conf.MetricsEndpoint), promhttp.Handler())
}
