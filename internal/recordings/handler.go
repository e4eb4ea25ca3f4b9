package recordings

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/response"
)

// Store is the persistence used by the recording handlers. *Repository implements it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	List(ctx context.Context, f ListFilter) ([]models.Recording, error)
	Update(ctx context.Context, id uuid.UUID, p Patch) (*models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// ArchiveStorage signs and removes archived copies. *storage.S3 implements it.
type ArchiveStorage interface {
	PresignDownload(ctx context.Context, key string) (string, time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// UpdateRequest is the body for PATCH /recordings/:id. An empty course_id or batch_id clears it.
type UpdateRequest struct {
	Title      *string `json:"title"`
	Instructor *string `json:"instructor"`
	CourseID   *string `json:"course_id"`
	BatchID    *string `json:"batch_id"`
}

// PlaybackURL is returned by GET /recordings/:id/playback-url.
type PlaybackURL struct {
	URL       string `json:"url"`
	Source    string `json:"source"` // "archive" or "zoom"
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store   Store
	archive ArchiveStorage // nil when S3 is not configured
	logger  *zap.Logger
}

// NewHandler creates a recordings handler. archive may be nil.
func NewHandler(store Store, archive ArchiveStorage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, archive: archive, logger: logger}
}

// List handles GET /recordings with optional course_id, batch_id, limit and offset.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	var ok bool
	if f.CourseID, ok = optionalUUID(c, "course_id"); !ok {
		return
	}
	if f.BatchID, ok = optionalUUID(c, "batch_id"); !ok {
		return
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

// PlaybackURL handles GET /recordings/:id/playback-url. Archived recordings get a presigned
// S3 URL; others fall back to the Zoom play URL.
func (h *Handler) PlaybackURL(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	if rec.ArchiveStatus == models.ArchiveStatusArchived && rec.ArchiveKey != "" && h.archive != nil {
		url, expires, err := h.archive.PresignDownload(c.Request.Context(), rec.ArchiveKey)
		if err == nil {
			response.OK(c, PlaybackURL{URL: url, Source: "archive", ExpiresIn: int(expires.Seconds())})
			return
		}
		h.logger.Warn("presign archived recording failed, using zoom url", zap.Error(err), zap.String("recording_id", rec.ID.String()))
	}
	if rec.PlayURL == "" {
		response.NotFound(c, "recording has no playable url")
		return
	}
	response.OK(c, PlaybackURL{URL: rec.PlayURL, Source: "zoom"})
}

// Update handles PATCH /recordings/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := Patch{Title: trimmed(req.Title), Instructor: trimmed(req.Instructor)}
	if p.Title != nil && *p.Title == "" {
		response.BadRequest(c, "title cannot be empty")
		return
	}
	if p.CourseID, p.ClearCourse, err = patchUUID(req.CourseID); err != nil {
		response.BadRequest(c, "invalid course_id")
		return
	}
	if p.BatchID, p.ClearBatch, err = patchUUID(req.BatchID); err != nil {
		response.BadRequest(c, "invalid batch_id")
		return
	}

	rec, err := h.store.Update(c.Request.Context(), id, p)
	if err != nil {
		h.logger.Error("update recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to update recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return
	}
	response.OK(c, rec)
}

// Delete handles DELETE /recordings/:id (admin). The archived S3 copy is removed best-effort.
func (h *Handler) Delete(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.Delete(ctx, rec.ID); err != nil {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	if rec.ArchiveKey != "" && h.archive != nil {
		if err := h.archive.Delete(ctx, rec.ArchiveKey); err != nil {
			h.logger.Warn("delete archived object failed", zap.Error(err), zap.String("key", rec.ArchiveKey))
		}
	}
	response.NoContent(c)
}

func (h *Handler) load(c *gin.Context) (*models.Recording, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	rec, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to get recording")
		return nil, false
	}
	if rec == nil {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	return rec, true
}

func optionalUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		response.BadRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}

func patchUUID(v *string) (*uuid.UUID, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	if strings.TrimSpace(*v) == "" {
		return nil, true, nil
	}
	id, err := uuid.Parse(*v)
	if err != nil {
		return nil, false, err
	}
	return &id, false, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
