package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	t.Cleanup(func() { InitWithWriter(&buf, "INFO", "text", false) })

	Info("session established", KeySessionID, "abc", KeyLibrary, "docs")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "session established" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record[KeySessionID] != "abc" {
		t.Errorf("session_id = %v", record[KeySessionID])
	}
	if record[KeyLibrary] != "docs" {
		t.Errorf("library = %v", record[KeyLibrary])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("command", KeyCommand, "PUT_START", KeyStatus, "ok")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("missing level tag: %q", out)
	}
	if !strings.Contains(out, "command=PUT_START") {
		t.Errorf("missing attribute: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("hidden debug")
	Info("hidden info")
	Warn("visible warn")
	Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered levels leaked: %q", out)
	}
	if !strings.Contains(out, "visible warn") || !strings.Contains(out, "visible error") {
		t.Errorf("expected levels missing: %q", out)
	}
}

func TestSetLevelIgnoresInvalid(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("BOGUS")
	Info("still works")
	if !strings.Contains(buf.String(), "still works") {
		t.Errorf("invalid level changed filtering: %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	lc := NewLogContext("10.0.0.9")
	lc.SessionID = "sess-1"
	lc.Library = "docs"
	lc.Command = "STAT"
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "command", KeyStatus, "ok")

	out := buf.String()
	for _, want := range []string{"session_id=sess-1", "library=docs", "command=STAT", "client_ip=10.0.0.9", "status=ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestFromContextMissing(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("expected nil LogContext")
	}
	if FromContext(nil) != nil {
		t.Error("expected nil LogContext for nil ctx")
	}
}
