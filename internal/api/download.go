package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/parcel/internal/archive"
	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/bundle"
	"github.com/mattjoyce/parcel/internal/delivery"
	"github.com/mattjoyce/parcel/internal/events"
	"github.com/mattjoyce/parcel/internal/ledger"
	"github.com/mattjoyce/parcel/internal/platform"
)

// handleDownloadLatest handles GET /api/download/latest?os=.
func (s *Server) handleDownloadLatest(w http.ResponseWriter, r *http.Request) {
	s.serveDownload(w, r, false)
}

// handleDownloadBinary handles GET /api/download/binary?os=. Always raw.
func (s *Server) handleDownloadBinary(w http.ResponseWriter, r *http.Request) {
	s.serveDownload(w, r, true)
}

// download tracks one request for events and the ledger.
type download struct {
	entry   ledger.Entry
	started time.Time
}

func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request, forceRaw bool) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	logger := s.logger.With("request_id", reqID)

	profile, err := platform.Detect(r.URL.Query().Get("os"), r.UserAgent())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dl := &download{
		started: time.Now(),
		entry: ledger.Entry{
			RequestID: reqID,
			Platform:  string(profile.OS()),
			RPMFamily: profile.RPMFamily,
		},
	}

	art, err := s.locator.Latest(ctx, profile)
	if err != nil {
		var ioErr *builds.IOError
		switch {
		case errors.Is(err, builds.ErrNotFound):
			logger.Info("no build available", "platform", profile.String())
			s.finish(ctx, dl, ledger.OutcomeNotFound, err)
			s.writeError(w, http.StatusNotFound, "no build available")
		case errors.As(err, &ioErr):
			logger.Error("failed to read artifact directory", "op", ioErr.Op, "path", ioErr.Path, "error", ioErr.Err)
			s.finish(ctx, dl, ledger.OutcomeFailed, err)
			s.writeErrorDetail(w, http.StatusInternalServerError, "internal_error", "failed to read builds")
		default:
			logger.Error("failed to locate build", "error", err)
			s.finish(ctx, dl, ledger.OutcomeFailed, err)
			s.writeErrorDetail(w, http.StatusInternalServerError, "internal_error", "failed to locate build")
		}
		return
	}

	req := bundle.Decide(profile, s.config.Companions, forceRaw)
	dl.entry.Artifact = art.Name
	dl.entry.Mode = string(req.Mode)
	s.events.Publish(events.DownloadStarted, events.Download{
		RequestID: reqID,
		Platform:  profile.String(),
		Mode:      string(req.Mode),
		Artifact:  art.Name,
	})

	outcome := ledger.OutcomeCompleted
	var cause error

	pkg, err := s.composer.Compose(ctx, req, art)
	if err != nil {
		pkg, cause = s.fallback(logger, dl, profile, art, err)
		outcome = ledger.OutcomeFallback
	}

	out := delivery.Serve(w, r, pkg)
	if out.Err != nil && !out.HeadersSent && pkg.Mode != string(bundle.RawBinary) {
		// The bundle vanished before the first byte; the raw build may still be served.
		pkg, cause = s.fallback(logger, dl, profile, art, out.Err)
		outcome = ledger.OutcomeFallback
		out = delivery.Serve(w, r, pkg)
	}

	dl.entry.DeliveredName = pkg.Filename
	dl.entry.Bytes = out.Bytes

	switch {
	case out.Completed():
		s.finish(ctx, dl, outcome, cause)
	case !out.HeadersSent:
		logger.Error("failed to deliver build", "artifact", art.Name, "error", out.Err)
		s.finish(ctx, dl, ledger.OutcomeFailed, out.Err)
		s.writeErrorDetail(w, http.StatusInternalServerError, "internal_error", "failed to deliver build")
	default:
		s.finish(ctx, dl, ledger.OutcomeInterrupted, out.Err)
	}
}

// fallback logs a failed composition and returns the raw package for art.
func (s *Server) fallback(logger *slog.Logger, dl *download, profile platform.Profile, art builds.Artifact, cause error) (delivery.Package, error) {
	var ce *archive.ConstructionError
	if errors.As(cause, &ce) {
		logger.Warn("archive construction failed, serving raw build", "stage", ce.Stage, "artifact", art.Name, "error", ce.Err)
	} else {
		logger.Warn("bundle composition failed, serving raw build", "artifact", art.Name, "error", cause)
	}

	dl.entry.Mode = string(bundle.RawBinary)
	s.events.Publish(events.DownloadFallback, events.Download{
		RequestID: dl.entry.RequestID,
		Platform:  profile.String(),
		Mode:      string(bundle.RawBinary),
		Artifact:  art.Name,
		Error:     cause.Error(),
	})
	return s.composer.Raw(profile.OS(), art), cause
}

// finish publishes the terminal event and records the ledger entry. The
// ledger write outlives a disconnected client.
func (s *Server) finish(ctx context.Context, dl *download, outcome ledger.Outcome, cause error) {
	dl.entry.Outcome = outcome
	dl.entry.StartedAt = dl.started
	dl.entry.CompletedAt = time.Now()
	if cause != nil {
		dl.entry.Error = cause.Error()
	}

	eventType := events.DownloadCompleted
	if outcome != ledger.OutcomeCompleted && outcome != ledger.OutcomeFallback {
		eventType = events.DownloadFailed
	}
	s.events.Publish(eventType, events.Download{
		RequestID: dl.entry.RequestID,
		Platform:  dl.entry.Platform,
		Mode:      dl.entry.Mode,
		Artifact:  dl.entry.Artifact,
		Filename:  dl.entry.DeliveredName,
		Bytes:     dl.entry.Bytes,
		Duration:  dl.entry.CompletedAt.Sub(dl.started).Milliseconds(),
		Error:     dl.entry.Error,
	})

	if s.ledger == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.ledger.Record(rctx, dl.entry); err != nil {
		s.logger.Error("failed to record download", "request_id", dl.entry.RequestID, "error", err)
	}
}
