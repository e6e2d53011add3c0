package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.InfoLevel)

	log.Info("segment", "round complete", map[string]interface{}{"round": 2, "accepted": 14})
	log.Debug("segment", "hidden", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "segment", rec["component"])
	assert.Equal(t, "round complete", rec["message"])
	assert.Equal(t, float64(14), rec["accepted"])
	assert.Contains(t, rec, "time")
}

func TestZerologAdapterError(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.DebugLevel)
	log.Error("export", errors.New("disk full"), map[string]interface{}{"path": "/tmp/x.shp"})

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "disk full", rec["error"])
	assert.Equal(t, "/tmp/x.shp", rec["path"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"verbose", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q): got (%v, %v), want %v wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(LevelEnv, "debug")
	assert.Equal(t, zerolog.DebugLevel, LevelFromEnv())
	t.Setenv(LevelEnv, "nonsense")
	assert.Equal(t, zerolog.InfoLevel, LevelFromEnv())
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, Nop{}, OrNop(nil))
	var buf bytes.Buffer
	z := NewZerolog(&buf, zerolog.InfoLevel)
	assert.Same(t, z, OrNop(z))
}
