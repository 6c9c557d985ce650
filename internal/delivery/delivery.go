// Package delivery streams a finished download to the client and releases its
// temporary resources afterwards.
package delivery

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/mattjoyce/parcel/internal/log"
)

// ModeHeader carries the bundle mode on every download response.
const ModeHeader = "X-Bundle-Mode"

// Package is a file ready to be sent under a disguised filename.
type Package struct {
	Path        string
	Filename    string
	ContentType string
	Mode        string
	Size        int64
	// Cleanup releases temporary resources backing Path. Nil for files the
	// service does not own.
	Cleanup func() error
}

// Outcome describes how a delivery ended.
type Outcome struct {
	Bytes       int64
	HeadersSent bool
	Err         error
}

// Completed reports whether the whole file reached the client.
func (o Outcome) Completed() bool { return o.Err == nil }

// Serve streams pkg to w. The package cleanup runs exactly once before Serve
// returns, whether the stream succeeded, failed, or the client went away.
// When HeadersSent is false the caller may still write an error response.
func Serve(w http.ResponseWriter, r *http.Request, pkg Package) (out Outcome) {
	logger := log.WithComponent("delivery")
	defer func() {
		if pkg.Cleanup == nil {
			return
		}
		if err := pkg.Cleanup(); err != nil {
			logger.Error("failed to clean up delivery", "path", pkg.Path, "error", err)
		}
	}()

	f, err := os.Open(pkg.Path)
	if err != nil {
		return Outcome{Err: fmt.Errorf("open %s: %w", pkg.Path, err)}
	}
	defer f.Close()

	size := pkg.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	h := w.Header()
	h.Set("Content-Type", pkg.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": pkg.Filename}))
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	if pkg.Mode != "" {
		h.Set(ModeHeader, pkg.Mode)
	}
	w.WriteHeader(http.StatusOK)
	out.HeadersSent = true

	if r.Method == http.MethodHead {
		return out
	}

	n, err := io.Copy(w, f)
	out.Bytes = n
	if err == nil && r.Context().Err() != nil {
		err = r.Context().Err()
	}
	if err == nil && n != size {
		err = fmt.Errorf("short write: sent %d of %d bytes", n, size)
	}
	if err != nil {
		out.Err = err
		// Headers are committed; the failure can only be logged.
		logger.Warn("download stream interrupted",
			"filename", pkg.Filename,
			"bytes", n,
			"size", size,
			"client_gone", r.Context().Err() != nil,
			"error", err,
		)
	}
	return out
}
