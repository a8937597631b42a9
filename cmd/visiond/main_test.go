package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gabrielmaialva33/vivino/internal/config"
	"github.com/gabrielmaialva33/vivino/internal/emitter"
	"github.com/gabrielmaialva33/vivino/internal/stream"
)

// TestReportFatalEmitsErrorRecord validates a startup fault reaches the
// parent as an error record on the event channel, not only as a log line.
func TestReportFatalEmitsErrorRecord(t *testing.T) {
	var out bytes.Buffer
	emit := emitter.New(&out)

	cause := errors.New("no such file")
	if err := reportFatal(emit, "cannot load model", cause); !errors.Is(err, cause) {
		t.Fatalf("expected the cause back for the exit status, got %v", err)
	}

	var rec struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("bad record %q: %v", out.String(), err)
	}
	if rec.Error != "cannot load model" || rec.Detail != "no such file" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

// TestOpenSourceSelection validates mock:// addresses get the synthetic
// source and an empty rtsp address fails construction.
func TestOpenSourceSelection(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.Source = "mock://test"

	src, err := openSource(cfg)
	if err != nil {
		t.Fatalf("mock source: %v", err)
	}
	if _, ok := src.(*stream.MockSource); !ok {
		t.Errorf("expected MockSource for mock:// address, got %T", src)
	}

	cfg.Stream.Source = ""
	if _, err := openSource(cfg); err == nil {
		t.Error("expected error for empty source address")
	}
}
