package api

import "github.com/mattjoyce/parcel/internal/ledger"

// ErrorResponse is returned on errors. Message carries detail on 500s.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	EventSubscribers int    `json:"event_subscribers"`
	LedgerEnabled    bool   `json:"ledger_enabled"`
	WeatherEnabled   bool   `json:"weather_enabled"`
}

// RecentDownloadsResponse is returned by GET /api/downloads/recent.
type RecentDownloadsResponse struct {
	Downloads []ledger.Entry `json:"downloads"`
}
