package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsAndScope(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel).With(String("component", "registry"))

	l.Info("session started",
		String("symbol", "BTCUSDT"),
		Int("signals", 3),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "registry", got["component"])
	assert.Equal(t, "BTCUSDT", got["symbol"])
	assert.Equal(t, float64(3), got["signals"])
	assert.Equal(t, float64(1500), got["took"])
	assert.Equal(t, "boom", got["error"])
	assert.Equal(t, "session started", got["message"])
}

func TestLevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	NewWithWriter(&quiet, zerolog.WarnLevel).Info("dropped")
	NewWithWriter(&loud, zerolog.DebugLevel).Debug("kept")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "kept")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "verbose"})
	require.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	Nop().With(String("k", "v")).Error("nothing", Error(nil))
}
