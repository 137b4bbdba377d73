package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestSetupWithWriters_FansOut(t *testing.T) {
	var text, js bytes.Buffer
	SetupWithWriters(&text, &js, LevelInfo)
	t.Cleanup(func() { SetupWithWriters(&bytes.Buffer{}, nil, LevelInfo) })

	Info("gap detected", "minutes", 45)

	assert.Contains(t, text.String(), "gap detected")
	assert.Contains(t, text.String(), "minutes=45")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &rec))
	assert.Equal(t, "gap detected", rec["msg"])
	assert.EqualValues(t, 45, rec["minutes"])
}

func TestLevelFiltering(t *testing.T) {
	var text bytes.Buffer
	SetupWithWriters(&text, nil, LevelWarn)
	t.Cleanup(func() { SetupWithWriters(&bytes.Buffer{}, nil, LevelInfo) })

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn")
	Error("shown error", errors.New("boom"), "id", "x")

	out := text.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warn")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "id=x")
}

func TestSetup_FileFallback(t *testing.T) {
	err := Setup(t.TempDir()+"/missing/dir/app.log", LevelInfo)
	require.Error(t, err)
	require.NoError(t, Close())
}

func TestSetup_WritesJSONFile(t *testing.T) {
	path := t.TempDir() + "/app.log"
	require.NoError(t, Setup(path, LevelInfo))
	Info("written to file", "k", "v")
	require.NoError(t, Close())
	SetupWithWriters(&bytes.Buffer{}, nil, LevelInfo)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"written to file"`))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com/private.ics?token=abcd"))
	assert.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com?token=abcd"))
	assert.Equal(t, "url://...(redacted)", RedactURL("not a url"))
}
