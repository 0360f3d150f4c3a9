package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	lineOne = `{"message":"Machine 1 in Mode active. Temp: 70.1°C, Vib: 1.20Hz.","author":"Sensor-1","timestamp":"2025-02-10 12:00:00","category":"active","keyword_mentioned":"High"}`
	lineTwo = `{"message":"Machine 2 in Mode idle. Temp: 50.0°C, Vib: 0.80Hz.","author":"Sensor-2","timestamp":"2025-02-10 12:00:02","category":"idle","keyword_mentioned":"Low"}`
)

func appendTo(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTailSourceReturnsOnlyAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.jsonl")
	source, err := NewTailSource(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	msgs, err := source.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)

	appendTo(t, path, lineOne+"\n\n")
	msgs, err = source.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Sensor-1", msgs[0].Author)
	require.Equal(t, "High", msgs[0].Keyword)

	msgs, err = source.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)

	appendTo(t, path, "not json\n"+lineTwo+"\n")
	msgs, err = source.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "idle", msgs[0].Category)
}

func TestTailSourceWaitsForCompleteLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.jsonl")
	source, err := NewTailSource(path, nil)
	require.NoError(t, err)
	ctx := context.Background()

	appendTo(t, path, lineOne[:40])
	msgs, err := source.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Zero(t, source.Offset())

	appendTo(t, path, lineOne[40:]+"\n")
	msgs, err = source.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(len(lineOne)+1), source.Offset())
}

func TestTailSourceRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.jsonl")
	source, err := NewTailSource(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	appendTo(t, path, lineOne+"\n"+lineTwo+"\n")
	msgs, err := source.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.NoError(t, os.WriteFile(path, []byte(lineTwo+"\n"), 0o644))
	msgs, err = source.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Sensor-2", msgs[0].Author)
}

func TestTailSourceValidation(t *testing.T) {
	_, err := NewTailSource("", nil)
	require.Error(t, err)

	source, err := NewTailSource(filepath.Join(t.TempDir(), "x"), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.Poll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
