package log

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	mu      sync.Mutex
	entries []string
	fields  []map[string]any
}

func (l *testLogger) record(level string, f map[string]any, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+":"+msg)
	l.fields = append(l.fields, f)
}

func (l *testLogger) Info(f map[string]any, msg string)  { l.record("INFO", f, msg) }
func (l *testLogger) Error(f map[string]any, msg string) { l.record("ERROR", f, msg) }
func (l *testLogger) Debug(f map[string]any, msg string) { l.record("DEBUG", f, msg) }
func (l *testLogger) Warn(f map[string]any, msg string)  { l.record("WARN", f, msg) }
func (l *testLogger) Panic(map[string]any, string)       {}
func (l *testLogger) Fatal(map[string]any, string)       {}

func swapGlobal(t *testing.T, l Logger) {
	t.Helper()
	orig := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(orig) })
}

func TestActualZapLogger(t *testing.T) {
	Debug(map[string]any{"key1": "value1", "key2": 42, "err": errors.New("boom")}, "test debug")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")
	assert.Panics(t, func() { Panic(nil, "test panic") })
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	tlog := &testLogger{}
	swapGlobal(t, tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	assert.Equal(t, []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}, tlog.entries)
}

func TestConfigure(t *testing.T) {
	swapGlobal(t, &testLogger{})

	require.NoError(t, Configure("dev", "debug"))
	require.NoError(t, Configure("prod", "INFO"))
	assert.Error(t, Configure("dev", "notalevel"))
}

func TestComponent_TagsFields(t *testing.T) {
	tlog := &testLogger{}
	l := Component(tlog, "state")

	orig := map[string]any{"sites": 2}
	l.Info(orig, "loaded")
	l.Warn(nil, "slow")

	require.Len(t, tlog.fields, 2)
	assert.Equal(t, "state", tlog.fields[0]["component"])
	assert.Equal(t, 2, tlog.fields[0]["sites"])
	assert.Equal(t, "state", tlog.fields[1]["component"])
	_, mutated := orig["component"]
	assert.False(t, mutated, "caller's field map must not be modified")
}

func TestComponent_NilFallsBackToGlobal(t *testing.T) {
	tlog := &testLogger{}
	swapGlobal(t, tlog)

	Component(nil, "api").Error(nil, "failed")
	assert.Equal(t, []string{"ERROR:failed"}, tlog.entries)
}

func TestNoopLogger_AllLevels(t *testing.T) {
	swapGlobal(t, NewNoopLogger())

	Debug(nil, "debug message")
	Info(nil, "info message")
	Warn(nil, "warn message")
	Error(nil, "error message")
	Panic(nil, "panic message")
	Fatal(nil, "fatal message")
}
