package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// EventsPath is the status event stream route.
const EventsPath = "/api/v1/scan/events"

// HeartbeatInterval keeps idle streams open through proxies.
const HeartbeatInterval = 15 * time.Second

// EventSource fans out the orchestrator's event stream.
type EventSource interface {
	Subscribe() (<-chan models.Event, func())
	Latest() []models.Event
}

// EventsHandler serves the status event stream over SSE.
type EventsHandler struct {
	source    EventSource
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(source EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		source:    source,
		heartbeat: HeartbeatInterval,
		logger:    logger.With("component", "events-handler"),
	}
}

// StreamEvents handles SSE streaming of scan events.
// This is a raw HTTP handler (not Huma) to support SSE.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Scans run for hours; lift the server write deadline for this response.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	w.WriteHeader(http.StatusOK)

	// Late subscribers first get the last known progress and scan state.
	var lastSeq uint64
	for _, ev := range h.source.Latest() {
		sendSSEEvent(w, flusher, ev)
		lastSeq = ev.Seq
	}

	h.logger.Debug("event stream opened", "caller", caller(r.Context()))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("event stream closed by client")
			return
		case <-ticker.C:
			sendSSEHeartbeat(w, flusher)
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq != 0 && ev.Seq <= lastSeq {
				continue
			}
			sendSSEEvent(w, flusher, ev)
		}
	}
}

// sendSSEEvent writes one event named after its type, with the sequence as id.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "id: %d\n", ev.Seq)
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// sendSSEHeartbeat sends an SSE comment as a keepalive.
func sendSSEHeartbeat(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
	flusher.Flush()
}

// SSE payload types, one per event name so each gets its own schema.
type (
	SSEInfoEvent      models.Event
	SSEErrorEvent     models.Event
	SSESuccessEvent   models.Event
	SSEProcessEvent   models.Event
	SSEProgressEvent  models.Event
	SSEScanStateEvent models.Event
)

// RegisterRawEndpoints adds the SSE stream to the OpenAPI document. The
// actual handler is mounted on the chi router behind mw.Auth.
func (h *EventsHandler) RegisterRawEndpoints(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "streamScanEvents",
		Method:      http.MethodGet,
		Path:        EventsPath,
		Summary:     "Stream scan events via SSE",
		Description: `Server-Sent Events stream of scan status, in order.

Event names match the event type: info, error, success, process, progress and scan-state.
On connect the last progress and scan-state events are replayed.
Heartbeat comments are sent every 15 seconds.`,
		Tags:     []string{"Scan"},
		Security: []map[string][]string{{mw.SecurityScheme: {}}},
	}, map[string]any{
		string(models.EventInfo):      SSEInfoEvent{},
		string(models.EventError):     SSEErrorEvent{},
		string(models.EventSuccess):   SSESuccessEvent{},
		string(models.EventProcess):   SSEProcessEvent{},
		string(models.EventProgress):  SSEProgressEvent{},
		string(models.EventScanState): SSEScanStateEvent{},
	}, func(ctx context.Context, input *struct{}, send sse.Sender) {
		// Placeholder; the chi route serves the stream.
		<-ctx.Done()
	})
}
