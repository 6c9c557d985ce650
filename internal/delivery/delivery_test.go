package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func countingCleanup(calls *int, err error) func() error {
	return func() error {
		*calls++
		return err
	}
}

func TestServeStreamsWithHeaders(t *testing.T) {
	calls := 0
	pkg := Package{
		Path:        writeFile(t, "zip-bytes"),
		Filename:    "WeatherApp.zip",
		ContentType: "application/zip",
		Mode:        "archive",
		Cleanup:     countingCleanup(&calls, nil),
	}

	rec := httptest.NewRecorder()
	out := Serve(rec, httptest.NewRequest(http.MethodGet, "/api/download/latest", nil), pkg)

	require.NoError(t, out.Err)
	assert.True(t, out.Completed())
	assert.True(t, out.HeadersSent)
	assert.EqualValues(t, 9, out.Bytes)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zip-bytes", rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=WeatherApp.zip`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))
	assert.Equal(t, "archive", rec.Header().Get(ModeHeader))
	assert.Equal(t, 1, calls)
}

func TestServeMissingFileCleansUpBeforeHeaders(t *testing.T) {
	calls := 0
	pkg := Package{
		Path:        filepath.Join(t.TempDir(), "gone"),
		Filename:    "WeatherApp",
		ContentType: "application/octet-stream",
		Cleanup:     countingCleanup(&calls, nil),
	}

	rec := httptest.NewRecorder()
	out := Serve(rec, httptest.NewRequest(http.MethodGet, "/", nil), pkg)

	require.Error(t, out.Err)
	assert.False(t, out.HeadersSent)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 1, calls)
}

type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(status int)    { b.status = status }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestServeWriteFailureStillCleansUp(t *testing.T) {
	calls := 0
	pkg := Package{
		Path:        writeFile(t, "payload"),
		Filename:    "WeatherApp.tar.gz",
		ContentType: "application/gzip",
		Cleanup:     countingCleanup(&calls, errors.New("remove failed")),
	}

	w := &brokenWriter{header: http.Header{}}
	out := Serve(w, httptest.NewRequest(http.MethodGet, "/", nil), pkg)

	require.Error(t, out.Err)
	assert.True(t, out.HeadersSent)
	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, 1, calls)
}

func TestServeClientDisconnect(t *testing.T) {
	calls := 0
	pkg := Package{
		Path:        writeFile(t, "payload"),
		Filename:    "WeatherApp",
		ContentType: "application/octet-stream",
		Cleanup:     countingCleanup(&calls, nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	out := Serve(httptest.NewRecorder(), req, pkg)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestServeHead(t *testing.T) {
	pkg := Package{
		Path:        writeFile(t, "payload"),
		Filename:    "WeatherApp",
		ContentType: "application/octet-stream",
	}

	rec := httptest.NewRecorder()
	out := Serve(rec, httptest.NewRequest(http.MethodHead, "/", nil), pkg)
	require.NoError(t, out.Err)
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
}
