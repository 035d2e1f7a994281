package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log output: %v\n%s", err, buf.String())
		}
		out = append(out, m)
	}
	return out
}

func TestHandler_OrderedKeysAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyJSONHandler(&buf, false, nil))

	log.With("worker", 3).WithGroup("game").Info("finished",
		"score", 12,
		"err", errors.New("boom"),
		slog.Group("weights", "holes", -30.5),
	)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, `{"time":`) {
		t.Fatalf("expected time first, got %s", line)
	}
	if i, j := strings.Index(line, `"msg"`), strings.Index(line, `"worker"`); i < 0 || j < i {
		t.Fatalf("expected msg before attrs, got %s", line)
	}

	recs := decodeLines(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec["msg"] != "finished" || rec["level"] != "INFO" {
		t.Fatalf("unexpected header: %v", rec)
	}
	if rec["worker"] != float64(3) {
		t.Fatalf("worker attr should stay at top level, got %v", rec)
	}
	g, ok := rec["game"].(map[string]any)
	if !ok {
		t.Fatalf("missing game group: %v", rec)
	}
	if g["score"] != float64(12) || g["err"] != "boom" {
		t.Fatalf("unexpected game group: %v", g)
	}
	w, ok := g["weights"].(map[string]any)
	if !ok || w["holes"] != -30.5 {
		t.Fatalf("unexpected nested group: %v", g)
	}
}

func TestHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "pretty", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "n", 1)

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info record should be filtered: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "\n  \"msg\": \"shown\"") {
		t.Fatalf("expected indented output, got %s", buf.String())
	}
	if recs := decodeLines(t, &buf); len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := New(&bytes.Buffer{}, "json", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
