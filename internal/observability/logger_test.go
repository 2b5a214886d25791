// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/loginfill/internal/config"
)

// -- Test Helper Functions --

// syncBuffer is a goroutine-safe WriteSyncer for capturing log output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// captureStdout swaps os.Stdout for a pipe until the returned function runs.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()
	return func() string {
		w.Close()
		os.Stdout = original
		return <-done
	}
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "loginfill",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)
		GetLogger().Named("filler").Info("Set value on password field.", zap.Int("length", 6))
		Sync()

		got := out.String()
		assert.Contains(t, got, ansiColors["green"]+"INFO"+ansiReset)
		assert.Contains(t, got, "loginfill.filler.")
		assert.Contains(t, got, "Set value on password field.")
		assert.Contains(t, got, `"length": 6`)
	})

	t.Run("json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, out)
		GetLogger().Warn("Request failed.", zap.String("type", "fill_field"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Request failed.", entry["msg"])
		assert.Equal(t, "fill_field", entry["type"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out)
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("rotating file sink", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logFile := filepath.Join(t.TempDir(), "nested", "loginfill.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&syncBuffer{}))
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})

	t.Run("only initializes once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First", Format: "json"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second", Format: "json"}, out)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestInitialize_RedactsCredentialFields(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &syncBuffer{}

	Initialize(config.LoggerConfig{Level: "debug", Format: "json"}, out)
	GetLogger().With(zap.String("user", "alice")).Info("Filled login form.",
		zap.String("password", "s3cret"),
		zap.String("Text", "typed"),
		zap.String("field", "//*[@id='p']"))
	Sync()

	got := out.String()
	assert.NotContains(t, got, "alice")
	assert.NotContains(t, got, "s3cret")
	assert.NotContains(t, got, "typed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(got), &entry))
	assert.Equal(t, 5.0, entry["user_len"])
	assert.Equal(t, 6.0, entry["password_len"])
	assert.Equal(t, 5.0, entry["Text_len"])
	assert.Equal(t, "//*[@id='p']", entry["field"], "other fields pass through")
}

func TestScrub_LeavesInputUntouched(t *testing.T) {
	in := []zapcore.Field{zap.String("type", "fill_field"), zap.String("value", "hunter2")}
	out := scrub(in)

	assert.Equal(t, "hunter2", in[1].String)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, zap.Int("value_len", 7), out[1])

	clean := []zapcore.Field{zap.Int("length", 6)}
	assert.Equal(t, clean, scrub(clean))
}

func TestInitializeProtocolLogger_KeepsStdoutClean(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	restore := captureStdout(t)

	InitializeProtocolLogger(config.LoggerConfig{Level: "debug", Format: "json"})
	GetLogger().Info("Serving native messaging requests.")
	Sync()

	assert.Empty(t, restore(), "protocol mode must not write logs to stdout")
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		require.NotNil(t, GetLogger())
		assert.Nil(t, globalLogger.Load(), "the fallback is not stored globally")
	})

	t.Run("global logger after initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info"}, zapcore.AddSync(&syncBuffer{}))
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
