package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/engagement-telemetry/internal/replay"
)

func TestRunWritesReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tracePath := filepath.Join(dir, "visit.json")
	trace := `{"subject_id":"a","document_height":100,"viewport_height":100,
		"steps":[{"at_ms":30000,"signal":{"type":"unload"}}]}`
	require.NoError(t, os.WriteFile(tracePath, []byte(trace), 0o600))

	var out bytes.Buffer
	require.NoError(t, run("", tracePath, &out))

	var report replay.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Equal(t, "sent", report.Summary.ReadState)
	require.Equal(t, 100, report.Summary.MaxScrollDepthPct)
}

func TestRunMissingTrace(t *testing.T) {
	t.Parallel()

	require.Error(t, run("", filepath.Join(t.TempDir(), "missing.json"), &bytes.Buffer{}))
}
