package api

// osParam is the shared ?os= query parameter.
var osParam = map[string]any{
	"name":     "os",
	"in":       "query",
	"required": false,
	"schema": map[string]any{
		"type": "string",
		"enum": []string{"windows", "macos", "linux"},
	},
	"description": "Platform override. Detected from User-Agent when absent.",
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the public routes.
func buildOpenAPIDoc(withWeather bool) map[string]any {
	paths := map[string]any{
		"/api/download/latest": map[string]any{
			"get": downloadOperation("downloadLatest",
				"Newest build for the platform, bundled per configuration",
				[]string{"application/octet-stream", "application/zip", "application/gzip"}),
		},
		"/api/download/binary": map[string]any{
			"get": downloadOperation("downloadBinary",
				"Newest build for the platform as a bare binary",
				[]string{"application/octet-stream"}),
		},
		"/api/downloads/recent": map[string]any{
			"get": map[string]any{
				"operationId": "recentDownloads",
				"summary":     "Recent download attempts from the ledger",
				"parameters": []any{map[string]any{
					"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "minimum": 1},
				}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Ledger rows, newest first"},
					"401": map[string]any{"description": "Missing or invalid operator token"},
					"503": map[string]any{"description": "Ledger disabled"},
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
		"/api/events": map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"summary":     "Server-sent download lifecycle events",
				"parameters": []any{
					queryParam("since", "Resume after this event id", "integer"),
					queryParam("type", "Comma-separated event types, e.g. completed,fallback", "string"),
					queryParam("os", "Only events for this platform", "string"),
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "text/event-stream"},
				},
				"security": []any{map[string]any{"BearerAuth": []string{}}},
			},
		},
	}

	if withWeather {
		paths["/api/weather"] = map[string]any{
			"get": map[string]any{
				"operationId": "weather",
				"summary":     "Current and daily forecast for a place",
				"parameters": []any{map[string]any{
					"name": "q", "in": "query", "schema": map[string]any{"type": "string"},
				}},
				"responses": map[string]any{
					"200": map[string]any{"description": "Forecast"},
					"404": map[string]any{"description": "Location not found"},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "parcel",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func downloadOperation(id, summary string, contentTypes []string) map[string]any {
	content := map[string]any{}
	for _, ct := range contentTypes {
		content[ct] = map[string]any{"schema": map[string]any{"type": "string", "format": "binary"}}
	}
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"parameters":  []any{osParam},
		"responses": map[string]any{
			"200": map[string]any{"description": "Attachment", "content": content},
			"400": map[string]any{"description": "Unknown os value"},
			"404": map[string]any{"description": "No build available"},
			"500": map[string]any{"description": "Internal error"},
		},
	}
}

func queryParam(name, description, typ string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "query",
		"description": description,
		"schema":      map[string]any{"type": typ},
	}
}
