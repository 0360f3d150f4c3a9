package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Routes holds the optional endpoints mounted next to the dashboard API. A
// nil field leaves its route unmounted. A nil Logger discards request logs.
type Routes struct {
	Hub         *Hub
	AlarmStream http.Handler
	Ingest      http.Handler
	Logger      *zap.Logger
}

// NewRouter mounts the dashboard API and the optional routes.
func NewRouter(handler *Handler, routes Routes) *chi.Mux {
	logger := routes.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(zapLogFormatter{logger: logger}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/machines", handler.Machines)
		r.Get("/machines/{id}/history", handler.MachineHistory)
		r.Get("/modes", handler.Modes)
		r.Get("/summary", handler.Summary)
		r.Get("/frame", handler.Frame)
		r.Get("/reports/efficiency.xlsx", handler.ExportXLSX)
		r.Get("/reports/efficiency.pdf", handler.ExportPDF)
		if routes.AlarmStream != nil {
			r.Handle("/alarms/stream", routes.AlarmStream)
		}
		if routes.Ingest != nil {
			r.Post("/ingest", routes.Ingest.ServeHTTP)
		}
	})

	if routes.Hub != nil {
		r.Get("/ws", routes.Hub.ServeWS)
	}
	return r
}
