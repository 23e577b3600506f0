package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// History paging defaults.
const (
	defaultHistoryPage  = 1
	defaultHistoryLimit = 20
)

type deliveryReader interface {
	Get(ctx context.Context, id int64) (*domain.Delivery, error)
}

// TrackingHandler serves location publishing, queries and tracking feeds.
type TrackingHandler struct {
	tracker    trackingUsecase
	deliveries deliveryReader
	logger     logx.Logger
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(logger logx.Logger, tracker trackingUsecase, deliveries dispatchUsecase) *TrackingHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &TrackingHandler{tracker: tracker, deliveries: deliveries, logger: logger}
}

// PublishLocation handles POST /deliveries/{id}/locations.
func (h *TrackingHandler) PublishLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	var req locationRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	d, err := h.deliveries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}

	sample := domain.LocationSample{
		DeliveryID: d.ID,
		DriverID:   req.DriverID,
		Location:   domain.Location{Lat: *req.Lat, Lng: *req.Lng},
		Speed:      req.Speed,
		Status:     req.Status,
	}
	if sample.DriverID == 0 {
		sample.DriverID = d.Driver.ID()
	}
	if req.Timestamp != nil {
		sample.Timestamp = req.Timestamp.UTC()
	}
	if err := h.tracker.PublishLocation(r.Context(), sample); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusAccepted, map[string]any{"status": "accepted", "delivery_id": d.ID})
}

// LatestLocation handles GET /deliveries/{id}/locations/latest.
func (h *TrackingHandler) LatestLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	s, err := h.tracker.LatestLocation(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, locationToResponse(*s))
}

// LocationHistory handles GET /deliveries/{id}/locations?page=&limit=.
func (h *TrackingHandler) LocationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	page, limit := defaultHistoryPage, defaultHistoryLimit
	q := r.URL.Query()
	if s := q.Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid page")
			return
		}
		page = v
	}
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	p, err := h.tracker.LocationHistory(r.Context(), id, page, limit)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, locationPageToResponse(p))
}

// Subscribers handles GET /deliveries/{id}/subscribers.
func (h *TrackingHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, subscribersDTO{DeliveryID: id, Subscribers: h.tracker.Subscribers(id)})
}

// Simulate handles POST /deliveries/{id}/tracking/simulate.
func (h *TrackingHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	var req simulateRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	h.startFeed(w, r, id, func(d *domain.Delivery) error {
		return h.tracker.StartSimulation(d.ID, d.Driver.ID(), d.Vehicle.ID(), req.toOptions())
	})
}

// StartDevice handles POST /deliveries/{id}/tracking/device.
func (h *TrackingHandler) StartDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	h.startFeed(w, r, id, func(d *domain.Delivery) error {
		return h.tracker.StartPassThrough(d.ID, d.Driver.ID(), d.Vehicle.ID())
	})
}

// Feed handles GET /deliveries/{id}/tracking.
func (h *TrackingHandler) Feed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	f, ok := h.tracker.ActiveFeed(id)
	if !ok {
		writeError(h.logger, w, r, http.StatusNotFound, "no active tracking feed")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, feedToResponse(f))
}

// StopTracking handles DELETE /deliveries/{id}/tracking. Stopping twice is not an error.
func (h *TrackingHandler) StopTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	stopped := h.tracker.StopTracking(id)
	writeJSON(h.logger, w, r, http.StatusOK, map[string]any{"delivery_id": id, "stopped": stopped})
}

// startFeed requires a delivery that currently holds a driver and a vehicle.
// The delivery is read again once the feed is registered: a transition committed in between
// found no feed to stop or rebind, so the feed is dropped unless it still matches.
func (h *TrackingHandler) startFeed(w http.ResponseWriter, r *http.Request, id int64, start func(*domain.Delivery) error) {
	d, err := h.deliveries.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	if !d.HoldsResources() {
		writeServiceError(h.logger, w, r,
			fmt.Errorf("%w: delivery %d is %s without an active assignment", apperr.ErrPreconditionFailed, d.ID, d.Status))
		return
	}
	if err := start(d); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}

	cur, err := h.deliveries.Get(r.Context(), id)
	if err != nil {
		h.tracker.StopTracking(id)
		writeServiceError(h.logger, w, r, err)
		return
	}
	f, ok := h.tracker.ActiveFeed(id)
	if !cur.HoldsResources() || (ok && (f.DriverID != cur.Driver.ID() || f.VehicleID != cur.Vehicle.ID())) {
		h.tracker.StopTracking(id)
		h.logger.Warn("tracking feed dropped",
			logx.Int64("delivery_id", id),
			logx.String("status", string(cur.Status)),
		)
		writeServiceError(h.logger, w, r,
			fmt.Errorf("%w: delivery %d assignment changed while tracking was starting", apperr.ErrPreconditionFailed, id))
		return
	}
	if !ok {
		// a simulation can finish before we read it back
		writeJSON(h.logger, w, r, http.StatusAccepted, map[string]any{"delivery_id": id})
		return
	}
	writeJSON(h.logger, w, r, http.StatusAccepted, feedToResponse(f))
}
