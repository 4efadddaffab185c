package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/areuok/server/internal/event"
	"github.com/areuok/server/internal/model"
	"github.com/areuok/server/internal/supervision"
)

// EventsHandler serves the per-device SSE stream of sign-in events.
//
// Every open connection runs its own loop over a bus subscription. Each
// event is forwarded only when the connecting device supervises the device
// that signed in; everything else is dropped silently. A failed supervision
// lookup drops that one event and never closes the stream.
type EventsHandler struct {
	bus       *event.Bus
	directory supervision.Directory
	keepalive time.Duration
}

// NewEventsHandler creates an events handler emitting keepalive comments at
// the given interval
func NewEventsHandler(bus *event.Bus, directory supervision.Directory, keepalive time.Duration) *EventsHandler {
	return &EventsHandler{
		bus:       bus,
		directory: directory,
		keepalive: keepalive,
	}
}

// streamEvent is the tagged wire envelope for one forwarded event
type streamEvent struct {
	Type string            `json:"type"`
	Data model.SigninEvent `json:"data"`
}

// HandleStream handles GET /devices/{id}/events
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before the headers go out: a client that has seen the
	// response is guaranteed to see every event published afterwards.
	sub := h.bus.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// client disconnected
			return

		case ev, open := <-sub.C():
			if !open {
				// bus closed during shutdown
				return
			}

			allowed, err := h.directory.IsSupervisorOf(ctx, deviceID, ev.DeviceID)
			if err != nil {
				log.Printf("events: supervision lookup for device %s: %v", deviceID, err)
				continue
			}
			if !allowed {
				continue
			}

			payload, err := json.Marshal(streamEvent{Type: "signin", Data: ev})
			if err != nil {
				log.Printf("events: encode event for device %s: %v", deviceID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
