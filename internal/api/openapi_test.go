package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBuildOpenAPIDoc_Paths(t *testing.T) {
	doc := buildOpenAPIDoc(false)

	if doc["openapi"] != "3.1.0" {
		t.Errorf("expected openapi 3.1.0, got %v", doc["openapi"])
	}
	paths := doc["paths"].(map[string]any)
	for _, p := range []string{"/api/download/latest", "/api/download/binary", "/api/downloads/recent", "/api/events"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
	if _, ok := paths["/api/weather"]; ok {
		t.Error("weather path documented while disabled")
	}

	get := paths["/api/download/latest"].(map[string]any)["get"].(map[string]any)
	if get["operationId"] != "downloadLatest" {
		t.Errorf("operationId = %v", get["operationId"])
	}
	ok200 := get["responses"].(map[string]any)["200"].(map[string]any)
	content := ok200["content"].(map[string]any)
	if _, ok := content["application/gzip"]; !ok {
		t.Error("latest download should advertise application/gzip")
	}
}

func TestBuildOpenAPIDoc_Weather(t *testing.T) {
	paths := buildOpenAPIDoc(true)["paths"].(map[string]any)
	if _, ok := paths["/api/weather"]; !ok {
		t.Fatal("expected /api/weather when enabled")
	}
}

func TestBuildOpenAPIDoc_SecurityScheme(t *testing.T) {
	doc := buildOpenAPIDoc(false)

	components, ok := doc["components"].(map[string]any)
	if !ok {
		t.Fatal("expected components")
	}
	schemes := components["securitySchemes"].(map[string]any)
	bearer := schemes["BearerAuth"].(map[string]any)
	if bearer["type"] != "http" || bearer["scheme"] != "bearer" {
		t.Errorf("unexpected BearerAuth scheme: %v", bearer)
	}
}

func TestHandleOpenAPI(t *testing.T) {
	s := newTestServer(t, testOptions{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
}
