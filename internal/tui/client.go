package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/parcel/internal/events"
)

type eventMsg events.Event

type healthMsg struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	EventSubscribers int    `json:"event_subscribers"`
	LedgerEnabled    bool   `json:"ledger_enabled"`
	WeatherEnabled   bool   `json:"weather_enabled"`
}

type errMsg error

type connectedMsg struct{}

type disconnectedMsg struct{ err error }

type reconnectMsg struct{}

type tickMsg time.Time

const reconnectDelay = 2 * time.Second

// subscribe streams /api/events into ch, resuming after since. It returns
// disconnectedMsg once the stream ends.
func subscribe(apiURL, token string, since int64, ch chan<- events.Event, connected chan<- struct{}) tea.Cmd {
	return func() tea.Msg {
		url := apiURL + "/api/events"
		if since > 0 {
			url += "?since=" + strconv.FormatInt(since, 10)
		}
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return errMsg(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return disconnectedMsg{err: fmt.Errorf("event stream: %s", resp.Status)}
		}

		select {
		case connected <- struct{}{}:
		default:
		}
		err = readSSE(resp.Body, func(ev events.Event) { ch <- ev })
		return disconnectedMsg{err: err}
	}
}

// readSSE parses a text/event-stream body and calls emit for each complete
// event. Comment lines are ignored.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cur events.Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				cur.Data = json.RawMessage(data.String())
				cur.At = time.Now()
				emit(cur)
			}
			cur = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func waitConnected(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return connectedMsg{}
	}
}

// fetchHealth queries /healthz.
func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
