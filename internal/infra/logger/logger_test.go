package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{input: "", want: zerolog.InfoLevel},
		{input: "debug", want: zerolog.DebugLevel},
		{input: "INFO", want: zerolog.InfoLevel},
		{input: "warn", want: zerolog.WarnLevel},
		{input: "warning", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.InfoLevel, FormatJSON)

	l.Debug().Msg("hidden")
	l.Info().Msg("cache: namespace created: name=products")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "cache: namespace created: name=products", line["message"])
	assert.NotContains(t, line, "caller")
}

func TestNew_ConsoleDebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel, FormatConsole)

	l.Debug().Msg("playback: track loading")

	assert.Contains(t, buf.String(), "playback: track loading")
	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crate.log")
	closer, err := Init(Config{Output: "file", File: path, Level: "info"})
	require.NoError(t, err)
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	zerolog.DefaultContextLogger.Info().Msg("server: started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"server: started"`)
}

func TestInit_Errors(t *testing.T) {
	_, err := Init(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = Init(Config{Output: "file"})
	assert.Error(t, err)
}
