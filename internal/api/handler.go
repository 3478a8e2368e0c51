package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"driving-school-admin/internal/config"
	"driving-school-admin/internal/logger"
	"driving-school-admin/internal/model"
	"driving-school-admin/internal/reconcile"
	"driving-school-admin/internal/storage"
	"driving-school-admin/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// JobProducer queues imports for the import worker.
type JobProducer interface {
	EnqueueImport(ctx context.Context, job *model.ImportJob) error
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	importer *reconcile.Importer
	uploads  storage.Storage
	producer JobProducer
	checks   map[string]HealthCheck
	cfg      *config.Config
	log      zerolog.Logger
}

// NewHandler wires the operator API. uploads and producer may be nil, in
// which case queued imports are refused.
func NewHandler(
	cfg *config.Config,
	importer *reconcile.Importer,
	uploads storage.Storage,
	producer JobProducer,
) *Handler {
	return &Handler{
		importer: importer,
		uploads:  uploads,
		producer: producer,
		checks:   make(map[string]HealthCheck),
		cfg:      cfg,
		log:      logger.Component("api"),
	}
}

func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// RunImport imports the uploaded workbook before responding.
func (h *Handler) RunImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A workbook must be uploaded in the 'file' field"})
		return
	}
	sandbox, err := parseSandbox(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sandbox flag"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Str("file", fileHeader.Filename).Msg("Failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer file.Close()

	session, err := h.importer.Run(c.Request.Context(), reconcile.Request{
		Workbook: file,
		Source:   fileHeader.Filename,
		Sandbox:  sandbox,
	})
	if err != nil {
		h.writeError(c, err, "Import failed")
		return
	}

	c.JSON(http.StatusOK, model.SessionResponse{Counts: session.Counts(), Session: session})
}

// QueueImport stores the upload and leaves the import to a worker.
func (h *Handler) QueueImport(c *gin.Context) {
	if h.uploads == nil || h.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queued imports are not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A workbook must be uploaded in the 'file' field"})
		return
	}
	sandbox, err := parseSandbox(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sandbox flag"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Str("file", fileHeader.Filename).Msg("Failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	job := model.ImportJob{
		ObjectKey: storage.ObjectKey(h.cfg.Storage.S3.Prefix, fileHeader.Filename, time.Now()),
		Source:    fileHeader.Filename,
		Sandbox:   sandbox,
	}

	if err := h.uploads.Upload(ctx, job.ObjectKey, file); err != nil {
		h.log.Error().Err(err).Str("object_key", job.ObjectKey).Msg("Failed to store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store workbook"})
		return
	}

	if err := h.producer.EnqueueImport(ctx, &job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		if delErr := h.uploads.Delete(ctx, job.ObjectKey); delErr != nil {
			h.log.Warn().Err(delErr).Str("object_key", job.ObjectKey).Msg("Failed to remove orphaned upload")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue import job"})
		return
	}

	h.log.Info().
		Str("job_id", job.ID).
		Str("object_key", job.ObjectKey).
		Bool("sandbox", sandbox).
		Msg("Import job enqueued")

	c.JSON(http.StatusAccepted, model.QueuedImportResponse{
		Message: "Import job queued successfully",
		Job:     job,
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.importer.Session(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.writeError(c, err, "Failed to load session")
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Counts: session.Counts(), Session: session})
}

func (h *Handler) ForceApply(c *gin.Context) {
	sessionID, conflictID := c.Param("session_id"), c.Param("conflict_id")

	session, outcome, err := h.importer.ForceApply(c.Request.Context(), sessionID, conflictID)
	if err != nil {
		h.writeError(c, err, "Force-apply failed")
		return
	}

	c.JSON(http.StatusOK, model.ForceApplyResponse{
		Outcome: outcome,
		Session: model.SessionResponse{Counts: session.Counts(), Session: session},
	})
}

func (h *Handler) DiscardSession(c *gin.Context) {
	session, err := h.importer.Discard(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.writeError(c, err, "Discard failed")
		return
	}
	c.JSON(http.StatusOK, model.SessionResponse{Counts: session.Counts(), Session: session})
}

func (h *Handler) History(c *gin.Context) {
	sessions, err := h.importer.History(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "Failed to load history")
		return
	}

	summaries := make([]model.SessionSummary, 0, len(sessions))
	for i := range sessions {
		summaries = append(summaries, sessions[i].Summary())
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      h.cfg.App.Name,
		"version":      h.cfg.App.Version,
		"dependencies": deps,
	})
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidWorkbook):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case stderrors.Is(err, errors.ErrConflictNotFound):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict not found or already applied"})
	case stderrors.Is(err, errors.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Session is closed"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func parseSandbox(c *gin.Context) (bool, error) {
	raw := c.PostForm("sandbox")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
