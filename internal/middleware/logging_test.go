package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWriteAuditLog(t *testing.T) {
	tests := []struct {
		result    string
		wantLevel string
	}{
		{AuditResultSuccess, "INFO"},
		{AuditResultDegradedEncoding, "WARN"},
		{AuditResultFailure, "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			buf := captureLogs(t)

			WriteAuditLog(context.Background(), "CREATE_ENTRY", "entry-1", tt.result)

			var record map[string]any
			if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
				t.Fatalf("failed to decode log: %v", err)
			}
			if record["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, record["level"])
			}
			if record["operation"] != "CREATE_ENTRY" || record["subject"] != "entry-1" || record["result"] != tt.result {
				t.Errorf("unexpected record: %v", record)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	buf := captureLogs(t)

	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/entries", nil))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to decode log: %v", err)
	}
	if record["status"] != float64(http.StatusCreated) {
		t.Errorf("expected status 201, got %v", record["status"])
	}
	if record["path"] != "/v1/entries" {
		t.Errorf("expected path /v1/entries, got %v", record["path"])
	}
}
