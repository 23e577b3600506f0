package handlers

import (
	"net/http"
	"strconv"

	"service-dispatch/internal/logx"
)

// ResourceHandler serves drivers and vehicles.
type ResourceHandler struct {
	uc     resourceUsecase
	logger logx.Logger
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(logger logx.Logger, uc resourceUsecase) *ResourceHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &ResourceHandler{uc: uc, logger: logger}
}

// CreateDriver handles POST /drivers.
func (h *ResourceHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req createDriverRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	d := req.toModel()
	id, err := h.uc.CreateDriver(r.Context(), d)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	d.ID = id
	d.IsAvailable = true
	w.Header().Set("Location", "/drivers/"+strconv.FormatInt(id, 10))
	writeJSON(h.logger, w, r, http.StatusCreated, driverToResponse(*d))
}

// GetDriver handles GET /drivers/{id}.
func (h *ResourceHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	d, err := h.uc.GetDriver(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, driverToResponse(*d))
}

// ListDrivers handles GET /drivers.
func (h *ResourceHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(h.logger, w, r)
	if !ok {
		return
	}
	list, err := h.uc.ListDrivers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, driversToResponse(list))
}

// CreateVehicle handles POST /vehicles.
func (h *ResourceHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req createVehicleRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	v := req.toModel()
	id, err := h.uc.CreateVehicle(r.Context(), v)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	v.ID = id
	v.IsAvailable = true
	w.Header().Set("Location", "/vehicles/"+strconv.FormatInt(id, 10))
	writeJSON(h.logger, w, r, http.StatusCreated, vehicleToResponse(*v))
}

// GetVehicle handles GET /vehicles/{id}.
func (h *ResourceHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(h.logger, w, r)
	if !ok {
		return
	}
	v, err := h.uc.GetVehicle(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, vehicleToResponse(*v))
}

// ListVehicles handles GET /vehicles.
func (h *ResourceHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(h.logger, w, r)
	if !ok {
		return
	}
	list, err := h.uc.ListVehicles(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, vehiclesToResponse(list))
}
