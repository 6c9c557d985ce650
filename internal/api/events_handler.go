package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/parcel/internal/events"
	"github.com/mattjoyce/parcel/internal/platform"
)

const keepAliveInterval = 15 * time.Second

// downloadFilter narrows the stream to some event types or one platform.
// The zero value passes everything.
type downloadFilter struct {
	types    map[string]struct{}
	platform platform.OS
}

func parseDownloadFilter(r *http.Request) (downloadFilter, error) {
	var f downloadFilter
	q := r.URL.Query()
	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if !strings.Contains(t, ".") {
				t = "download." + t
			}
			if f.types == nil {
				f.types = make(map[string]struct{})
			}
			f.types[t] = struct{}{}
		}
	}
	if raw := q.Get("os"); raw != "" {
		os, _, err := platform.ParseOS(raw)
		if err != nil {
			return downloadFilter{}, err
		}
		f.platform = os
	}
	return f, nil
}

func (f downloadFilter) match(ev events.Event) bool {
	if f.types != nil {
		if _, ok := f.types[ev.Type]; !ok {
			return false
		}
	}
	if f.platform == "" {
		return true
	}
	var d events.Download
	if err := ev.Decode(&d); err != nil {
		return false
	}
	return d.Platform == string(f.platform)
}

// handleEvents streams download lifecycle events as SSE. A reconnecting
// client resumes from Last-Event-ID, or ?since= when it cannot set headers.
// ?type=completed,fallback and ?os=windows narrow the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDownloadFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before the replay so nothing published in between is lost.
	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	cursor := resumeCursor(r)
	for _, ev := range s.events.SnapshotSince(cursor) {
		if filter.match(ev) {
			if err := writeSSE(w, ev); err != nil {
				return
			}
		}
		cursor = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= cursor || !filter.match(ev) {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func resumeCursor(r *http.Request) int64 {
	if id := parseEventID(r.Header.Get("Last-Event-ID")); id > 0 {
		return id
	}
	return parseEventID(r.URL.Query().Get("since"))
}

func parseEventID(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
