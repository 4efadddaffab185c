package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/areuok/server/internal/model"
	"github.com/areuok/server/internal/supervision"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SupervisionHandler handles supervision request and relation endpoints
type SupervisionHandler struct {
	service *supervision.Service
}

// NewSupervisionHandler creates a new supervision handler
func NewSupervisionHandler(service *supervision.Service) *SupervisionHandler {
	return &SupervisionHandler{service: service}
}

// pairRequest is the request body for the request/accept/reject endpoints
type pairRequest struct {
	SupervisorID string `json:"supervisor_id"`
	TargetID     string `json:"target_id"`
}

// requestResponse is the supervision request object in API responses
type requestResponse struct {
	RequestID    string    `json:"request_id"`
	SupervisorID string    `json:"supervisor_id"`
	TargetID     string    `json:"target_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// relationResponse is the supervision relation object in API responses
type relationResponse struct {
	RelationID     string     `json:"relation_id"`
	SupervisorID   string     `json:"supervisor_id"`
	TargetID       string     `json:"target_id"`
	SupervisorName *string    `json:"supervisor_name"`
	TargetName     *string    `json:"target_name"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

func toRequestResponse(req model.SupervisionRequest) requestResponse {
	return requestResponse{
		RequestID:    req.RequestID.String(),
		SupervisorID: req.SupervisorID.String(),
		TargetID:     req.TargetID.String(),
		Status:       string(req.Status),
		CreatedAt:    req.CreatedAt,
	}
}

// HandleRequest handles POST /supervision/request
func (h *SupervisionHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	supervisorID, targetID, ok := decodePair(w, r)
	if !ok {
		return
	}

	request, err := h.service.Request(r.Context(), supervisorID, targetID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toRequestResponse(request))
}

// HandlePending handles GET /supervision/pending/{id}
func (h *SupervisionHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	requests, err := h.service.Pending(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	responses := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, toRequestResponse(req))
	}
	respondJSON(w, http.StatusOK, responses)
}

// HandleAccept handles POST /supervision/accept
func (h *SupervisionHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	supervisorID, targetID, ok := decodePair(w, r)
	if !ok {
		return
	}

	if err := h.service.Accept(r.Context(), supervisorID, targetID); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// HandleReject handles POST /supervision/reject
func (h *SupervisionHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	supervisorID, targetID, ok := decodePair(w, r)
	if !ok {
		return
	}

	if err := h.service.Reject(r.Context(), supervisorID, targetID); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// HandleList handles GET /supervision/list/{id}
func (h *SupervisionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	relations, err := h.service.List(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	responses := make([]relationResponse, 0, len(relations))
	for _, relation := range relations {
		responses = append(responses, relationResponse{
			RelationID:     relation.RelationID.String(),
			SupervisorID:   relation.SupervisorID.String(),
			TargetID:       relation.TargetID.String(),
			SupervisorName: relation.SupervisorName,
			TargetName:     relation.TargetName,
			CreatedAt:      relation.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, responses)
}

// HandleRemove handles DELETE /supervision/{relation_id}. Removing an
// already-absent relation succeeds.
func (h *SupervisionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	relationID, err := uuid.Parse(chi.URLParam(r, "relation_id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid relation id")
		return
	}

	if err := h.service.Remove(r.Context(), relationID); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// decodePair decodes a {supervisor_id, target_id} body, responding with 400
// on malformed input
func decodePair(w http.ResponseWriter, r *http.Request) (supervisorID, targetID uuid.UUID, ok bool) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return uuid.Nil, uuid.Nil, false
	}

	supervisorID, err := uuid.Parse(req.SupervisorID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid supervisor_id")
		return uuid.Nil, uuid.Nil, false
	}
	targetID, err = uuid.Parse(req.TargetID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid target_id")
		return uuid.Nil, uuid.Nil, false
	}
	return supervisorID, targetID, true
}
