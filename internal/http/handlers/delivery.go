package handlers

import (
	"context"
	"net/http"
	"strconv"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// DeliveryHandler serves deliveries and their assignment.
type DeliveryHandler struct {
	uc     dispatchUsecase
	logger logx.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(logger logx.Logger, uc dispatchUsecase) *DeliveryHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &DeliveryHandler{uc: uc, logger: logger}
}

// Create handles POST /deliveries.
func (h *DeliveryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	d, err := h.uc.CreateDelivery(r.Context(), req.toModel())
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	w.Header().Set("Location", "/deliveries/"+strconv.FormatInt(d.ID, 10))
	writeJSON(h.logger, w, r, http.StatusCreated, deliveryToResponse(*d))
}

// Get handles GET /deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	d, err := h.uc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(*d))
}

// List handles GET /deliveries?status=&limit=&offset=.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(h.logger, w, r)
	if !ok {
		return
	}
	f := domain.DeliveryFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseDeliveryStatus(raw)
		if !ok {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid status")
			return
		}
		f.Status = &st
	}
	list, err := h.uc.List(r.Context(), f)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveriesToResponse(list))
}

// Delete handles DELETE /deliveries/{id}.
func (h *DeliveryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	if err := h.uc.DeleteDelivery(r.Context(), id); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assign handles POST /deliveries/{id}/assign.
func (h *DeliveryHandler) Assign(w http.ResponseWriter, r *http.Request) {
	h.withAssignment(w, r, h.uc.Assign)
}

// EditAssignment handles PUT /deliveries/{id}/assignment.
func (h *DeliveryHandler) EditAssignment(w http.ResponseWriter, r *http.Request) {
	h.withAssignment(w, r, h.uc.EditAssignment)
}

func (h *DeliveryHandler) withAssignment(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, deliveryID, driverID, vehicleID int64) (domain.Assignment, error),
) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	var req assignmentRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	a, err := fn(r.Context(), id, req.DriverID, req.VehicleID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(a))
}

// GetAssignment handles GET /deliveries/{id}/assignment.
func (h *DeliveryHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	a, err := h.uc.GetAssignment(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(a))
}

// RemoveAssignment handles DELETE /deliveries/{id}/assignment.
func (h *DeliveryHandler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.uc.RemoveAssignment)
}

// Start handles POST /deliveries/{id}/start.
func (h *DeliveryHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.uc.Start)
}

// Complete handles POST /deliveries/{id}/complete.
func (h *DeliveryHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.uc.Complete)
}

// Cancel handles POST /deliveries/{id}/cancel.
func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.uc.Cancel)
}

// UpdateStatus handles PUT /deliveries/{id}/status.
func (h *DeliveryHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	st, _ := domain.ParseDeliveryStatus(req.Status)
	d, err := h.uc.UpdateStatus(r.Context(), id, st, req.Notes)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(*d))
}

func (h *DeliveryHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, deliveryID int64) (*domain.Delivery, error),
) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	d, err := fn(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(*d))
}
