package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const (
	defaultBufferSize = 1024
	maxBodyBytes      = 1 << 20
)

// Source buffers messages posted by producers until the next poll. It is
// both the ingestion source and the HTTP handler producers post to.
type Source struct {
	mu       sync.Mutex
	buffer   []telemetry.RawMessage
	capacity int
	dropped  int64
	logger   *zap.Logger
}

// NewSource constructs a push source holding at most capacity messages.
func NewSource(capacity int, logger *zap.Logger) *Source {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{capacity: capacity, logger: logger}
}

// Poll returns and clears the buffered messages in arrival order.
func (s *Source) Poll(ctx context.Context) ([]telemetry.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return nil, nil
	}
	out := s.buffer
	s.buffer = nil
	return out, nil
}

// Dropped returns how many messages were rejected because the buffer was full.
func (s *Source) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// ServeHTTP accepts one JSON message or a JSON array of messages.
func (s *Source) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.logger.Warn("push ingest: read body error", zap.Error(err))
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msgs, err := decodeMessages(body)
	if err != nil {
		metrics.IncIngest(metrics.IngestMalformed)
		s.logger.Warn("push ingest: decode error", zap.Error(err))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	resp := s.enqueue(msgs)
	if resp.Accepted == 0 && resp.Dropped > 0 {
		s.logger.Warn("push ingest: buffer full", zap.Int("dropped", resp.Dropped))
		http.Error(w, "ingest buffer full", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Source) enqueue(msgs []telemetry.RawMessage) ingestResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	var resp ingestResponse
	for _, msg := range msgs {
		if len(s.buffer) >= s.capacity {
			resp.Dropped++
			continue
		}
		s.buffer = append(s.buffer, msg)
		resp.Accepted++
	}
	s.dropped += int64(resp.Dropped)
	return resp
}

func decodeMessages(body []byte) ([]telemetry.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var msgs []telemetry.RawMessage
		if err := json.Unmarshal(body, &msgs); err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return nil, errors.New("no messages")
		}
		return msgs, nil
	}
	msg, err := telemetry.DecodeRawMessage(body)
	if err != nil {
		return nil, err
	}
	return []telemetry.RawMessage{msg}, nil
}
