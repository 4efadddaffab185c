package handlers

import (
	"net/http"
	"time"

	"github.com/areuok/server/internal/streak"
)

// SigninHandler handles the daily check-in and status endpoints
type SigninHandler struct {
	engine *streak.Engine
}

// NewSigninHandler creates a new signin handler
func NewSigninHandler(engine *streak.Engine) *SigninHandler {
	return &SigninHandler{engine: engine}
}

// signinResponse is the JSON response for POST /devices/{id}/signin
type signinResponse struct {
	DeviceID string    `json:"device_id"`
	Date     time.Time `json:"date"`
	Streak   int       `json:"streak"`
}

// statusResponse is the JSON response for GET /devices/{id}/status
type statusResponse struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	Mode       string     `json:"mode"`
	LastSignin *time.Time `json:"last_signin"`
	Streak     int        `json:"streak"`
}

// HandleSignin handles POST /devices/{id}/signin
func (h *SigninHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.engine.RecordSignin(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, signinResponse{
		DeviceID: record.DeviceID.String(),
		Date:     record.Date,
		Streak:   record.Streak,
	})
}

// HandleStatus handles GET /devices/{id}/status
func (h *SigninHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.engine.Status(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, statusResponse{
		DeviceID:   status.Device.ID.String(),
		DeviceName: status.Device.DeviceName,
		Mode:       string(status.Device.Mode),
		LastSignin: status.LastSignin,
		Streak:     status.Streak,
	})
}
