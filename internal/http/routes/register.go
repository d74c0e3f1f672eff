package routes

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/handlers"
	"github.com/narworks/muhasebe-asistani-sub000/internal/http/mw"
)

// Handlers bundles every handler the routes need.
type Handlers struct {
	Scans    handlers.StateReader // optional, reported by /health
	Readyz   *handlers.ReadyzHandler
	Scan     *handlers.ScanHandler
	Events   *handlers.EventsHandler
	Schedule *handlers.ScheduleHandler
	Entity   *handlers.EntityHandler
	Credit   *handlers.CreditHandler
}

// StubHandlers returns handlers without dependencies, for OpenAPI generation.
func StubHandlers() *Handlers {
	logger := slog.Default()
	return &Handlers{
		Readyz:   handlers.NewReadyzHandler(nil),
		Scan:     handlers.NewScanHandler(nil, nil, logger),
		Events:   handlers.NewEventsHandler(nil, logger),
		Schedule: handlers.NewScheduleHandler(nil, logger),
		Entity:   handlers.NewEntityHandler(nil, nil, nil, nil, logger),
		Credit:   handlers.NewCreditHandler(nil, false, logger),
	}
}

// Register registers every Huma operation on api. The SSE stream is a raw
// chi route; RegisterDocs adds it to the OpenAPI document.
func Register(api huma.API, h *Handlers) {
	// Public
	mw.PublicGet(api, "/health", handlers.NewHealthCheck(h.Scans),
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))
	mw.PublicGet(api, "/healthz", handlers.Livez, mw.WithHidden())
	mw.PublicGet(api, "/readyz", h.Readyz.Readyz, mw.WithHidden())

	// --- Scan ---
	mw.Protected(api, http.MethodPost, "/api/v1/scan/start", h.Scan.StartScan,
		mw.WithTags("Scan"),
		mw.WithSummary("Start a scan"),
		mw.WithDescription("Starts a fresh scan of every active entity. Refused while a scan is running."),
		mw.WithOperationID("startScan"))
	mw.Protected(api, http.MethodPost, "/api/v1/scan/resume", h.Scan.ResumeScan,
		mw.WithTags("Scan"),
		mw.WithSummary("Resume the interrupted scan"),
		mw.WithDescription("Continues the last cancelled or errored scan, skipping entities already processed."),
		mw.WithOperationID("resumeScan"))
	mw.Protected(api, http.MethodPost, "/api/v1/scan/cancel", h.Scan.CancelScan,
		mw.WithTags("Scan"),
		mw.WithSummary("Cancel the running scan"),
		mw.WithOperationID("cancelScan"))
	mw.Protected(api, http.MethodGet, "/api/v1/scan/state", h.Scan.GetScanState,
		mw.WithTags("Scan"),
		mw.WithSummary("Get scan state"),
		mw.WithOperationID("getScanState"))
	mw.Protected(api, http.MethodGet, "/api/v1/scan/history", h.Scan.ListScanHistory,
		mw.WithTags("Scan"),
		mw.WithSummary("List recent scans"),
		mw.WithOperationID("listScanHistory"))

	// --- Schedule ---
	mw.Protected(api, http.MethodGet, "/api/v1/schedule", h.Schedule.GetSchedule,
		mw.WithTags("Schedule"),
		mw.WithSummary("Get schedule status"),
		mw.WithOperationID("getScheduleStatus"))
	mw.Protected(api, http.MethodPut, "/api/v1/schedule", h.Schedule.SetSchedule,
		mw.WithTags("Schedule"),
		mw.WithSummary("Set schedule"),
		mw.WithDescription("The start time is derived from the finish-by time and the estimated scan duration."),
		mw.WithOperationID("setSchedule"))

	// --- Entities ---
	mw.Protected(api, http.MethodGet, "/api/v1/entities", h.Entity.ListEntities,
		mw.WithTags("Entities"),
		mw.WithSummary("List entities"),
		mw.WithOperationID("listEntities"))
	mw.Protected(api, http.MethodPost, "/api/v1/entities", h.Entity.CreateEntity,
		mw.WithTags("Entities"),
		mw.WithSummary("Create entity"),
		mw.WithStatus(http.StatusCreated),
		mw.WithOperationID("createEntity"))
	mw.Protected(api, http.MethodPut, "/api/v1/entities/{id}", h.Entity.UpdateEntity,
		mw.WithTags("Entities"),
		mw.WithSummary("Update entity"),
		mw.WithOperationID("updateEntity"))
	mw.Protected(api, http.MethodDelete, "/api/v1/entities/{id}", h.Entity.DeactivateEntity,
		mw.WithTags("Entities"),
		mw.WithSummary("Deactivate entity"),
		mw.WithOperationID("deactivateEntity"))
	mw.Protected(api, http.MethodGet, "/api/v1/entities/{id}/records", h.Entity.ListRecords,
		mw.WithTags("Entities"),
		mw.WithSummary("List entity records"),
		mw.WithOperationID("listRecords"))

	// --- Credits ---
	mw.Protected(api, http.MethodGet, "/api/v1/credits", h.Credit.GetCredits,
		mw.WithTags("Credits"),
		mw.WithSummary("Get credit balance"),
		mw.WithOperationID("getCredits"))
	mw.Protected(api, http.MethodPost, "/api/v1/credits", h.Credit.TopUpCredits,
		mw.WithTags("Credits"),
		mw.WithSummary("Add credits"),
		mw.WithOperationID("topUpCredits"))
}

// RegisterDocs registers every operation including the raw SSE stream. Use it
// on APIs that only serve documentation.
func RegisterDocs(api huma.API, h *Handlers) {
	Register(api, h)
	h.Events.RegisterRawEndpoints(api)
}
