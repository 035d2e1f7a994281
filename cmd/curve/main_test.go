package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/brensch/tetromino/analysis"
)

func TestPrintCurve_GroupsRuns(t *testing.T) {
	var buf bytes.Buffer
	printCurve(&buf, []analysis.CurvePoint{
		{RunID: "a", Game: 1, Score: 2, Lines: 2, Placements: 40, Weights: [4]float64{-1, -2, -3, -94}},
		{RunID: "a", Game: 2, Score: 30, Lines: 12, Placements: 90, Capped: true, Weights: [4]float64{-5, -10, -15, -70}},
		{RunID: "b", Game: 1, Score: 4, Lines: 4, Placements: 60, Weights: [4]float64{-25, -25, -25, -25}},
	})
	out := buf.String()

	if strings.Count(out, "run ") != 2 {
		t.Fatalf("expected two run headers:\n%s", out)
	}
	if !strings.Contains(out, "90*") {
		t.Fatalf("capped game should be marked:\n%s", out)
	}
	if !strings.Contains(out, "-94.0000") || !strings.Contains(out, "-70.0000") {
		t.Fatalf("weights missing:\n%s", out)
	}
	if !strings.Contains(out, "w_height") || !strings.Contains(out, "w_holes") {
		t.Fatalf("weight columns should be labelled as weights:\n%s", out)
	}
	if strings.Index(out, "run a") > strings.Index(out, "run b") {
		t.Fatalf("runs out of order:\n%s", out)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789"); got != "01234567" {
		t.Fatalf("shortID = %s", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID = %s", got)
	}
}
