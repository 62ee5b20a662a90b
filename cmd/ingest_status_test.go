package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/urbanrisk-labs/climate-cli/internal/ingest"
)

func TestFormatStatusEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStatusEntries(&buf, nil)

	output := buf.String()
	// Should still have the header even if entries is nil.
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "STARTED")
}

func TestFormatStatusEntries_SingleEntry(t *testing.T) {
	started := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	completed := started.Add(5 * time.Minute)

	entries := []ingest.LogEntry{
		{
			ID:          1,
			Source:      "weather",
			Status:      "complete",
			StartedAt:   started,
			CompletedAt: &completed,
			RowsSynced:  50000,
		},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "weather")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2026-01-15 10:30")
	assert.Contains(t, output, "5m0s")
	assert.Contains(t, output, "50000")
}

func TestFormatStatusEntries_NoCompletedAt(t *testing.T) {
	started := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	entries := []ingest.LogEntry{
		{
			ID:          2,
			Source:      "worldbank",
			Status:      "running",
			StartedAt:   started,
			CompletedAt: nil,
			RowsSynced:  0,
		},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "worldbank")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "-") // duration should be "-"
}

func TestFormatStatusEntries_WithLongError(t *testing.T) {
	started := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	longErr := "this is a very long error message that should be truncated when it exceeds the sixty character limit set in the truncate function"

	entries := []ingest.LogEntry{
		{
			ID:        4,
			Source:    "svi",
			Status:    "failed",
			StartedAt: started,
			Error:     longErr,
		},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "svi")
	assert.Contains(t, output, "...")
	// The truncated error should NOT contain the full message.
	assert.NotContains(t, output, longErr)
}

func TestFormatStatusEntries_MultipleEntries(t *testing.T) {
	started1 := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	completed1 := started1.Add(2 * time.Minute)
	started2 := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)
	completed2 := started2.Add(30 * time.Second)

	entries := []ingest.LogEntry{
		{
			ID:          1,
			Source:      "weather",
			Status:      "complete",
			StartedAt:   started1,
			CompletedAt: &completed1,
			RowsSynced:  10000,
		},
		{
			ID:          2,
			Source:      "svi",
			Status:      "complete",
			StartedAt:   started2,
			CompletedAt: &completed2,
			RowsSynced:  500,
		},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "weather")
	assert.Contains(t, output, "svi")
	assert.Contains(t, output, "10000")
	assert.Contains(t, output, "500")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	long := "0123456789012345678901234567890123456789012345678901234567890123456789"
	got := truncate(long, 60)
	assert.Len(t, got, 60)
	assert.Contains(t, got, "...")
}
