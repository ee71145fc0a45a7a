package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"pki-ca-service/config"
)

func TestNewDB_SQLite(t *testing.T) {
	db, err := NewDB(SQLitePrefix+":memory:", &config.Config{})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		t.Errorf("ping failed: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("expected 1 max open connection, got %d", got)
	}
}

func TestWithParseTime(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"user:pass@tcp(db:3306)/ca", "user:pass@tcp(db:3306)/ca?parseTime=true"},
		{"user:pass@tcp(db:3306)/ca?charset=utf8mb4", "user:pass@tcp(db:3306)/ca?charset=utf8mb4&parseTime=true"},
		{"user:pass@tcp(db:3306)/ca?parseTime=true", "user:pass@tcp(db:3306)/ca?parseTime=true"},
	}

	for _, tt := range tests {
		if got := withParseTime(tt.dsn); got != tt.want {
			t.Errorf("withParseTime(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"TRACE": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceHandler(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tests := []struct {
		name      string
		cfg       *config.Config
		wantTrace bool
		wantGCP   bool
	}{
		{"disabled", &config.Config{LogLevel: "INFO"}, false, false},
		{"enabled", &config.Config{LogLevel: "INFO", OtelEnabled: true}, true, false},
		{"enabled with project", &config.Config{LogLevel: "INFO", OtelEnabled: true, GoogleCloudProject: "proj"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.cfg)
			logger.InfoContext(ctx, "hello")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to decode log: %v", err)
			}
			if _, ok := entry["trace"]; ok != tt.wantTrace {
				t.Errorf("trace present = %v, want %v", ok, tt.wantTrace)
			}
			gcp, ok := entry["logging.googleapis.com/trace"]
			if ok != tt.wantGCP {
				t.Errorf("gcp trace present = %v, want %v", ok, tt.wantGCP)
			}
			if tt.wantGCP && gcp != "projects/proj/traces/"+traceID.String() {
				t.Errorf("unexpected gcp trace %v", gcp)
			}
		})
	}
}
