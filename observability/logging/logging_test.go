package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Debug("hidden")
	logger.Info("vault minted", "vault", 7)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["message"] != "vault minted" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
	if entry["severity"] != "INFO" {
		t.Fatalf("unexpected severity: %v", entry["severity"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", entry)
	}
	if entry["vault"] != float64(7) {
		t.Fatalf("unexpected vault attr: %v", entry["vault"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("metrics_addr", ":9464"); attr.Value.String() != ":9464" {
		t.Fatalf("allowlisted field masked: %v", attr)
	}
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %v", attr)
	}
	if attr := MaskField("authorization", ""); attr.Value.String() != "" {
		t.Fatalf("empty value should pass through, got %v", attr)
	}
}

func TestMaskHeadersRedactsValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("starting", MaskHeaders("tracing_headers", map[string]string{"x-api-key": "secret", "env": "prod"}))

	if bytes.Contains(buf.Bytes(), []byte("secret")) {
		t.Fatalf("header value leaked: %s", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	group, ok := entry["tracing_headers"].(map[string]any)
	if !ok {
		t.Fatalf("missing header group: %v", entry)
	}
	if group["x-api-key"] != RedactedValue || group["env"] != "prod" {
		t.Fatalf("unexpected header group: %v", group)
	}
}
