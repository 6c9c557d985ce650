package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/parcel/internal/storage"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	id1, err := l.Record(ctx, Entry{
		RequestID: "req-1",
		StartedAt: base,
		Platform:  "windows",
		Mode:      "archive",
		Artifact:  "app-windows-2024-06-01.exe",
		Bytes:     1024,
		Outcome:   OutcomeCompleted,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	_, err = l.Record(ctx, Entry{
		StartedAt: base.Add(time.Minute),
		Platform:  "linux",
		RPMFamily: true,
		Mode:      "installer",
		Outcome:   OutcomeFallback,
		Error:     "archive stage: disk full",
	})
	require.NoError(t, err)

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "linux", entries[0].Platform)
	assert.True(t, entries[0].RPMFamily)
	assert.Equal(t, OutcomeFallback, entries[0].Outcome)
	assert.Equal(t, "archive stage: disk full", entries[0].Error)
	assert.Empty(t, entries[0].RequestID)

	assert.Equal(t, id1, entries[1].ID)
	assert.Equal(t, "req-1", entries[1].RequestID)
	assert.Equal(t, "app-windows-2024-06-01.exe", entries[1].Artifact)
	assert.EqualValues(t, 1024, entries[1].Bytes)
	assert.True(t, base.Equal(entries[1].StartedAt))
}

func TestRecentLimit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, Entry{Platform: "macos", Mode: "raw", Outcome: OutcomeCompleted})
		require.NoError(t, err)
	}

	entries, err := l.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestRecordValidates(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.Record(context.Background(), Entry{Outcome: OutcomeFailed})
	assert.Error(t, err)
	_, err = l.Record(context.Background(), Entry{Platform: "linux"})
	assert.Error(t, err)
}
