package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()
	assert.Equal(t, 1, h.Subscribers())

	sent := h.Publish(DownloadStarted, Download{Platform: "windows", RequestID: "r1"})

	select {
	case ev := <-ch:
		assert.Equal(t, sent.ID, ev.ID)
		assert.Equal(t, DownloadStarted, ev.Type)
		var d Download
		require.NoError(t, ev.Decode(&d))
		assert.Equal(t, "windows", d.Platform)
		assert.Equal(t, "r1", d.RequestID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers())
}

func TestSnapshotSinceRingBuffer(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(DownloadCompleted, nil)
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.EqualValues(t, 3, all[0].ID)
	assert.EqualValues(t, 5, all[2].ID)
	assert.JSONEq(t, `{}`, string(all[0].Data))

	tail := h.SnapshotSince(4)
	require.Len(t, tail, 1)
	assert.EqualValues(t, 5, tail[0].ID)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(2)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish(DownloadFailed, Download{Platform: "linux"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
