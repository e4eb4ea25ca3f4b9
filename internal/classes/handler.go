package classes

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/middleware"
	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/internal/zoom"
	"github.com/classroom-lms/backend/pkg/response"
)

// Store is the persistence used by the class handlers. *Repository implements it.
type Store interface {
	Create(ctx context.Context, sc *models.ScheduledClass) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledClass, error)
	List(ctx context.Context, f ListFilter) ([]models.ScheduledClass, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// MeetingScheduler creates Zoom meetings. *zoom.Client implements it.
type MeetingScheduler interface {
	CreateMeeting(ctx context.Context, topic, agenda string, startsAt time.Time, durationMin int) (*zoom.ScheduledMeeting, error)
}

// CreateRequest is the body for POST /classes.
type CreateRequest struct {
	Title           string    `json:"title" binding:"required"`
	Instructor      string    `json:"instructor"`
	Agenda          string    `json:"agenda"`
	CourseID        *string   `json:"course_id"`
	BatchID         *string   `json:"batch_id"`
	StartsAt        time.Time `json:"starts_at" binding:"required"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Handler handles scheduled class HTTP endpoints.
type Handler struct {
	store    Store
	meetings MeetingScheduler
	logger   *zap.Logger
}

// NewHandler creates a classes handler. meetings is nil when Zoom is not configured.
func NewHandler(store Store, meetings MeetingScheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, meetings: meetings, logger: logger}
}

// Create handles POST /classes. It schedules the Zoom meeting first and stores the class
// with the returned meeting id so later recordings are enriched with its metadata.
func (h *Handler) Create(c *gin.Context) {
	if h.meetings == nil {
		response.ServiceUnavailable(c, "zoom integration is not configured")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		response.BadRequest(c, "title is required")
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 60
	}
	courseID, err := parseOptionalUUID(req.CourseID)
	if err != nil {
		response.BadRequest(c, "invalid course_id")
		return
	}
	batchID, err := parseOptionalUUID(req.BatchID)
	if err != nil {
		response.BadRequest(c, "invalid batch_id")
		return
	}
	who, _ := middleware.CurrentIdentity(c)
	instructor := strings.TrimSpace(req.Instructor)
	if instructor == "" {
		instructor = who.Email
	}

	ctx := c.Request.Context()
	meeting, err := h.meetings.CreateMeeting(ctx, req.Title, req.Agenda, req.StartsAt, req.DurationMinutes)
	if err != nil {
		h.logger.Error("create zoom meeting failed", zap.Error(err), zap.String("title", req.Title))
		response.BadGateway(c, "failed to schedule zoom meeting")
		return
	}

	sc := &models.ScheduledClass{
		Title:           req.Title,
		Instructor:      instructor,
		CourseID:        courseID,
		BatchID:         batchID,
		ZoomMeetingID:   meeting.ID.String(),
		JoinURL:         meeting.JoinURL,
		StartURL:        meeting.StartURL,
		StartsAt:        req.StartsAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       &who.UserID,
	}
	if err := h.store.Create(ctx, sc); err != nil {
		h.logger.Error("create class failed", zap.Error(err), zap.String("zoom_meeting_id", sc.ZoomMeetingID))
		response.Internal(c, "failed to create class")
		return
	}
	h.logger.Info("class scheduled", zap.String("class_id", sc.ID.String()), zap.String("zoom_meeting_id", sc.ZoomMeetingID))
	response.Created(c, sc)
}

// List handles GET /classes with optional course_id, batch_id and upcoming=true. Students never see start URLs.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	var err error
	if f.CourseID, err = parseOptionalUUID(strPtr(c.Query("course_id"))); err != nil {
		response.BadRequest(c, "invalid course_id")
		return
	}
	if f.BatchID, err = parseOptionalUUID(strPtr(c.Query("batch_id"))); err != nil {
		response.BadRequest(c, "invalid batch_id")
		return
	}
	if c.Query("upcoming") == "true" {
		f.From = time.Now().UTC()
	}
	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list classes failed", zap.Error(err))
		response.Internal(c, "failed to list classes")
		return
	}
	if who, _ := middleware.CurrentIdentity(c); who.Role == models.RoleStudent {
		for i := range list {
			list[i].StartURL = ""
		}
	}
	response.OK(c, list)
}

// Get handles GET /classes/:id. The host start URL is only returned to admins and instructors.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid class id")
		return
	}
	sc, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get class failed", zap.Error(err), zap.String("class_id", id.String()))
		response.Internal(c, "failed to get class")
		return
	}
	if sc == nil {
		response.NotFound(c, "class not found")
		return
	}
	if who, _ := middleware.CurrentIdentity(c); who.Role == models.RoleStudent {
		sc.StartURL = ""
	}
	response.OK(c, sc)
}

// Delete handles DELETE /classes/:id (admin). Recordings already ingested keep their metadata.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid class id")
		return
	}
	ok, err := h.store.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete class failed", zap.Error(err), zap.String("class_id", id.String()))
		response.Internal(c, "failed to delete class")
		return
	}
	if !ok {
		response.NotFound(c, "class not found")
		return
	}
	response.NoContent(c)
}

func parseOptionalUUID(v *string) (*uuid.UUID, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*v))
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func strPtr(s string) *string { return &s }
