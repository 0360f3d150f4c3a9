package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

// TailSource follows a JSON-lines file that a producer keeps appending to.
// Each poll returns the complete lines written since the previous poll; a
// trailing line without a newline is left for the next poll.
type TailSource struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	offset int64
}

// NewTailSource constructs a tail source for path.
func NewTailSource(path string, logger *zap.Logger) (*TailSource, error) {
	if path == "" {
		return nil, errors.New("file source: empty path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TailSource{path: path, logger: logger}, nil
}

// Offset returns the byte position consumed so far.
func (s *TailSource) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Poll reads newly appended messages. A missing file yields an empty poll and
// a file shorter than the remembered offset is read again from the start.
func (s *TailSource) Poll(ctx context.Context) ([]telemetry.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("file source: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("file source: stat: %w", err)
	}
	if info.Size() < s.offset {
		s.logger.Info("live file truncated, reading from start",
			zap.String("path", s.path),
			zap.Int64("previous_offset", s.offset),
			zap.Int64("size", info.Size()),
		)
		s.offset = 0
	}
	if info.Size() == s.offset {
		return nil, nil
	}
	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("file source: seek: %w", err)
	}

	reader := bufio.NewReader(f)
	var messages []telemetry.RawMessage
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				s.logger.Warn("live file read interrupted", zap.String("path", s.path), zap.Error(readErr))
			}
			break
		}
		s.offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg, err := telemetry.DecodeRawMessage(line)
		if err != nil {
			metrics.IncIngest(metrics.IngestMalformed)
			s.logger.Warn("undecodable line skipped", zap.String("path", s.path), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
