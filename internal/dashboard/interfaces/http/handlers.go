package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/analytics/domain/window"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/dashboard/application"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const defaultHistoryLimit = 50

// Handler serves read-only views of the engine state.
type Handler struct {
	state        application.StateReader
	query        telemetry.ReadingQuery
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithReadingQuery attaches persisted history to the machine history view.
func WithReadingQuery(query telemetry.ReadingQuery) Option {
	return func(h *Handler) {
		h.query = query
	}
}

// WithHistoryLimit caps the persisted rows returned per machine.
func WithHistoryLimit(limit int) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.historyLimit = limit
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the frame timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(state application.StateReader, opts ...Option) (*Handler, error) {
	if state == nil {
		return nil, errors.New("dashboard handler: nil state")
	}
	h := &Handler{
		state:        state,
		historyLimit: defaultHistoryLimit,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type readingView struct {
	RecordID        string         `json:"record_id"`
	MachineID       int            `json:"machine_id"`
	Temperature     float64        `json:"temperature"`
	Vibration       float64        `json:"vibration"`
	Mode            telemetry.Mode `json:"operational_mode"`
	EfficiencyScore float64        `json:"efficiency_score"`
	IsAnomaly       bool           `json:"is_anomaly"`
	EfficiencyLevel string         `json:"efficiency_level"`
	Timestamp       string         `json:"timestamp"`
	ProcessedAt     time.Time      `json:"processed_at"`
}

type historyResponse struct {
	MachineID int                  `json:"machine_id"`
	Status    window.MachineStatus `json:"status"`
	History   window.History       `json:"history"`
	Recent    []readingView        `json:"recent,omitempty"`
}

// Machines handles GET /api/v1/machines.
func (h *Handler) Machines(w http.ResponseWriter, r *http.Request) {
	frame := application.BuildFrame(h.state, h.now())
	writeJSON(w, map[string]any{"machines": frame.Machines})
}

// MachineHistory handles GET /api/v1/machines/{id}/history.
func (h *Handler) MachineHistory(w http.ResponseWriter, r *http.Request) {
	machineID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || machineID <= 0 {
		http.Error(w, "invalid machine id", http.StatusBadRequest)
		return
	}

	windows := h.state.Windows()
	history, ok := windows.History(machineID)
	if !ok {
		http.Error(w, "machine not found", http.StatusNotFound)
		return
	}
	status, _ := windows.Status(machineID)
	resp := historyResponse{MachineID: machineID, Status: status, History: history}

	if h.query != nil {
		rows, err := h.query.ListRecent(r.Context(), machineID, h.historyLimit)
		if err != nil {
			h.logger.Error("list recent readings", zap.Int("machine_id", machineID), zap.Error(err))
			http.Error(w, "query history error", http.StatusInternalServerError)
			return
		}
		resp.Recent = make([]readingView, 0, len(rows))
		for _, row := range rows {
			resp.Recent = append(resp.Recent, toReadingView(row))
		}
	}
	writeJSON(w, resp)
}

// Modes handles GET /api/v1/modes.
func (h *Handler) Modes(w http.ResponseWriter, r *http.Request) {
	frame := application.BuildFrame(h.state, h.now())
	writeJSON(w, map[string]any{
		"modes":               frame.Modes,
		"status_distribution": frame.StatusDistribution,
	})
}

// Summary handles GET /api/v1/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.state.Summary())
}

// Frame handles GET /api/v1/frame, the same payload the websocket pushes.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, application.BuildFrame(h.state, h.now()))
}

// ExportXLSX handles GET /api/v1/reports/efficiency.xlsx.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", BuildEfficiencyXLSX)
}

// ExportPDF handles GET /api/v1/reports/efficiency.pdf.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, "pdf", "application/pdf", BuildEfficiencyPDF)
}

func (h *Handler) export(w http.ResponseWriter, format, contentType string, build func(application.Frame) ([]byte, error)) {
	start := time.Now()
	frame := application.BuildFrame(h.state, h.now())
	data, err := build(frame)
	if err != nil {
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		h.logger.Error("build efficiency report", zap.String("format", format), zap.Error(err))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(start))

	filename := "efficiency-" + frame.GeneratedAt.Format("20060102-150405") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	_, _ = w.Write(data)
}

func toReadingView(row telemetry.ScoredReading) readingView {
	return readingView{
		RecordID:        row.RecordID,
		MachineID:       row.MachineID,
		Temperature:     row.Temperature,
		Vibration:       row.Vibration,
		Mode:            row.Mode,
		EfficiencyScore: row.EfficiencyScore,
		IsAnomaly:       row.IsAnomaly,
		EfficiencyLevel: row.EfficiencyLevel,
		Timestamp:       row.Timestamp,
		ProcessedAt:     row.ProcessedAt,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
