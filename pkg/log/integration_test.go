package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

type detailedErr struct{ field string }

func (e *detailedErr) Error() string { return "bad " + e.field }

func (e *detailedErr) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.field)
}

func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", StageKey, "training")
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")
	testLogger.Error("error message", fmt.Errorf("test error"), ModelKey, "model_804")

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrorKey, "test error") {
		t.Error("Expected leading error under the error key")
	}
	if !testLogger.ContainsField(ModelKey, "model_804") {
		t.Error("Fields after a leading error should still be recorded")
	}
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(ConfigKey, "config_1", ModelKey, "model_2019")
	contextLogger.Info("seed trained", SeedKey, 3)

	if !testLogger.ContainsField(ConfigKey, "config_1") {
		t.Error("config context not found")
	}
	if !testLogger.ContainsField(ModelKey, "model_2019") {
		t.Error("model context not found")
	}
	if !testLogger.ContainsField(SeedKey, 3.0) {
		t.Error("seed field not found")
	}
}

func TestLoggerEnabled(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		want  map[Level]bool
	}{
		{
			name:  "debug",
			level: LevelDebug,
			want:  map[Level]bool{LevelDebug: true, LevelInfo: true, LevelWarn: true, LevelError: true},
		},
		{
			name:  "warn",
			level: LevelWarn,
			want:  map[Level]bool{LevelDebug: false, LevelInfo: false, LevelWarn: true, LevelError: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buffer := NewTestLogger(tt.level)
			for level, want := range tt.want {
				if got := logger.Enabled(context.Background(), level); got != want {
					t.Errorf("Enabled(%s) = %v, want %v", level, got, want)
				}
			}
			logger.Debug("hidden")
			if tt.level > LevelDebug && buffer.Len() != 0 {
				t.Errorf("debug record written at level %s", tt.level)
			}
		})
	}
}

func TestErrorLoggingIntegration(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	err := errors.WithStack(&detailedErr{field: "months"})
	testLogger.Error("configuration rejected", err)

	entries, parseErr := testLogger.Entries()
	if parseErr != nil {
		t.Fatalf("Entries() error: %v", parseErr)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry[ErrorKey] != "bad months" {
		t.Errorf("error = %v, want 'bad months'", entry[ErrorKey])
	}
	detail, ok := entry[ErrorDetailKey].(map[string]interface{})
	if !ok || detail["field"] != "months" {
		t.Errorf("error detail = %v, want structured fields", entry[ErrorDetailKey])
	}
	if st, _ := entry[StacktraceKey].(string); !strings.Contains(st, "integration_test.go") {
		t.Errorf("stack trace missing test frame: %q", st)
	}
}

func TestDanglingKey(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	testLogger.Info("odd fields", "alone")

	entries, err := testLogger.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := entries[0]["alone"]; !ok || v != nil {
		t.Errorf("dangling key should be recorded with a null value, got %v", v)
	}
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, LevelInfo)

	p.GetLoggerWithName("ensemble").Info("started", ConfigKey, "config_2")
	p.GetLogger().Debug("not written")

	p.SetLevel(LevelDebug)
	p.GetLogger().Debug("written")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first[ComponentKey] != "ensemble" {
		t.Errorf("component = %v, want ensemble", first[ComponentKey])
	}
	if _, ok := first[zerolog.TimestampFieldName]; !ok {
		t.Error("provider records should carry a timestamp")
	}
}

func TestGlobalProvider(t *testing.T) {
	provider, logger := NewTestLoggerProvider(LevelInfo)
	SetProvider(provider)
	defer SetProvider(nil)

	GetLoggerWithName("fetch").Info("dataset present", SourceKey, "s3://bucket/key")

	if !logger.ContainsField(ComponentKey, "fetch") {
		t.Error("named logger should tag the component")
	}
	if !logger.ContainsField(SourceKey, "s3://bucket/key") {
		t.Error("source field not found")
	}

	provider.SetLevel(LevelError)
	GetLogger().Info("suppressed")
	if logger.ContainsMessage("suppressed") {
		t.Error("SetLevel should suppress info records")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			testLogger.With(SeedKey, seed).Info("seed trained")
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.Entries()
	if err != nil {
		t.Fatalf("concurrent writes produced unparsable output: %v", err)
	}
	if len(entries) != 8 {
		t.Errorf("Expected 8 entries, got %d", len(entries))
	}
}

func BenchmarkLogging(b *testing.B) {
	logger, _ := NewTestLogger(LevelInfo)
	for i := 0; i < b.N; i++ {
		logger.Info("seed trained", SeedKey, i, SamplesKey, 1000)
	}
}
