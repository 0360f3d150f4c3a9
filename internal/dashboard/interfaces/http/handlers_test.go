package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/dashboard/application"
	ingest "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/application"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/memory"
)

var fixedNow = time.Date(2025, 2, 10, 12, 5, 0, 0, time.UTC)

func newTestRouter(t *testing.T, withQuery bool) http.Handler {
	t.Helper()
	repo := memory.NewReadingRepository()
	engine, err := ingest.NewEngine(repo)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for i, temp := range []float64{60, 96, 70} {
		engine.Process(context.Background(), telemetry.RawMessage{
			Body:      fmt.Sprintf("Machine 7 in Mode active. Temp: %.1f°C, Vib: 1.00Hz.", temp),
			Author:    "Sensor-7",
			Timestamp: fmt.Sprintf("2025-02-10 12:00:0%d", i),
			Category:  "active",
		})
	}
	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	if withQuery {
		opts = append(opts, WithReadingQuery(repo), WithHistoryLimit(2))
	}
	handler, err := NewHandler(engine, opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return NewRouter(handler, Routes{})
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSummaryEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/api/v1/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary ingest.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.AnomalyCount != 1 || summary.Machines != 1 || summary.Processed != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestMachinesEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/api/v1/machines")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Machines []application.MachineView `json:"machines"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Machines) != 1 || resp.Machines[0].MachineID != 7 {
		t.Fatalf("unexpected machines: %+v", resp.Machines)
	}
	if resp.Machines[0].Status.Efficiency != 100 || resp.Machines[0].Band != application.BandGood {
		t.Fatalf("unexpected latest status: %+v", resp.Machines[0])
	}
}

func TestMachineHistoryEndpoint(t *testing.T) {
	router := newTestRouter(t, true)

	rec := get(t, router, "/api/v1/machines/7/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := resp.History.Efficiency; len(got) != 3 || got[0] != 100 || got[1] != 50 || got[2] != 100 {
		t.Fatalf("unexpected efficiency history: %v", got)
	}
	if len(resp.Recent) != 2 || resp.Recent[0].Timestamp != "2025-02-10 12:00:02" {
		t.Fatalf("unexpected recent rows: %+v", resp.Recent)
	}

	if rec := get(t, router, "/api/v1/machines/8/history"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := get(t, router, "/api/v1/machines/abc/history"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestModesEndpoint(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/api/v1/modes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Modes              []application.ModeView `json:"modes"`
		StatusDistribution map[string]int         `json:"status_distribution"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Modes) != 1 || resp.Modes[0].Count != 3 || math.Abs(resp.Modes[0].Average-250.0/3) > 1e-9 {
		t.Fatalf("unexpected modes: %+v", resp.Modes)
	}
	if resp.StatusDistribution["active"] != 1 {
		t.Fatalf("unexpected distribution: %v", resp.StatusDistribution)
	}
}

func TestReportExports(t *testing.T) {
	router := newTestRouter(t, false)

	pdf := get(t, router, "/api/v1/reports/efficiency.pdf")
	if pdf.Code != http.StatusOK {
		t.Fatalf("pdf: expected 200, got %d", pdf.Code)
	}
	if !bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf: unexpected body prefix")
	}
	if got := pdf.Header().Get("Content-Disposition"); got != `attachment; filename="efficiency-20250210-120500.pdf"` {
		t.Fatalf("pdf: unexpected disposition %q", got)
	}

	xlsx := get(t, router, "/api/v1/reports/efficiency.xlsx")
	if xlsx.Code != http.StatusOK {
		t.Fatalf("xlsx: expected 200, got %d", xlsx.Code)
	}
	if !bytes.HasPrefix(xlsx.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx: expected zip container")
	}
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestRouter(t, false), "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandlerRejectsNilState(t *testing.T) {
	if _, err := NewHandler(nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRouterMountsIngest(t *testing.T) {
	handler, err := NewHandler(mustEngine(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	called := false
	router := NewRouter(handler, Routes{Ingest: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if !called || rec.Code != http.StatusAccepted {
		t.Fatalf("ingest route not mounted: called=%v code=%d", called, rec.Code)
	}
	if rec := get(t, router, "/ws"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected /ws unmounted, got %d", rec.Code)
	}
}
