package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/areuok/server/internal/device"
	"github.com/areuok/server/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DeviceHandler handles device registration and profile endpoints
type DeviceHandler struct {
	service *device.Service
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(service *device.Service) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// registerRequest is the request body for POST /devices/register
type registerRequest struct {
	DeviceName string  `json:"device_name"`
	IMEI       *string `json:"imei"`
	Mode       string  `json:"mode"`
}

// updateNameRequest is the request body for PATCH /devices/{id}/name
type updateNameRequest struct {
	DeviceName string `json:"device_name"`
}

// deviceResponse is the device object in API responses
type deviceResponse struct {
	DeviceID          string     `json:"device_id"`
	DeviceName        string     `json:"device_name"`
	IMEI              *string    `json:"imei"`
	Mode              string     `json:"mode"`
	CreatedAt         time.Time  `json:"created_at"`
	LastSeenAt        time.Time  `json:"last_seen_at"`
	LastNameUpdatedAt *time.Time `json:"last_name_updated_at"`
}

func toDeviceResponse(d model.Device) deviceResponse {
	return deviceResponse{
		DeviceID:          d.ID.String(),
		DeviceName:        d.DeviceName,
		IMEI:              d.IMEI,
		Mode:              string(d.Mode),
		CreatedAt:         d.CreatedAt,
		LastSeenAt:        d.LastSeenAt,
		LastNameUpdatedAt: d.LastNameUpdatedAt,
	}
}

// HandleRegister handles POST /devices/register
func (h *DeviceHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DeviceName = strings.TrimSpace(req.DeviceName)
	if req.DeviceName == "" {
		respondWithError(w, http.StatusBadRequest, "device_name is required")
		return
	}

	mode := model.DeviceMode(req.Mode)
	if mode != model.ModeSignin && mode != model.ModeSupervisor {
		respondWithError(w, http.StatusBadRequest, "mode must be \"signin\" or \"supervisor\"")
		return
	}

	registered, err := h.service.Register(r.Context(), req.DeviceName, req.IMEI, mode)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDeviceResponse(registered))
}

// HandleGet handles GET /devices/{id}
func (h *DeviceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDeviceResponse(found))
}

// HandleUpdateName handles PATCH /devices/{id}/name
func (h *DeviceHandler) HandleUpdateName(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	var req updateNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.DeviceName = strings.TrimSpace(req.DeviceName)
	if req.DeviceName == "" {
		respondWithError(w, http.StatusBadRequest, "device_name is required")
		return
	}

	updated, err := h.service.UpdateName(r.Context(), id, req.DeviceName)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDeviceResponse(updated))
}

// HandleSearch handles GET /search/devices?q=
func (h *DeviceHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	devices, err := h.service.Search(r.Context(), query)
	if err != nil {
		respondAppError(w, err)
		return
	}

	responses := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, toDeviceResponse(d))
	}
	respondJSON(w, http.StatusOK, responses)
}

// deviceIDParam parses the {id} URL parameter, responding with 400 on
// malformed input
func deviceIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid device id")
		return uuid.Nil, false
	}
	return id, true
}
