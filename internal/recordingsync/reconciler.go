package recordingsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/internal/recordings"
	"github.com/classroom-lms/backend/internal/zoom"
)

// ErrSourceUnavailable wraps any failure to fetch the meeting list. Nothing is written when it occurs.
var ErrSourceUnavailable = errors.New("recording source unavailable")

// Source lists meetings with cloud recordings in a date range, across all pages. *zoom.Client implements it.
type Source interface {
	ListRecordings(ctx context.Context, from, to time.Time) ([]zoom.Meeting, error)
}

// Registry finds the scheduled class for a Zoom meeting. It returns nil, nil when there is none.
type Registry interface {
	FindByZoomMeetingID(ctx context.Context, meetingID string) (*models.ScheduledClass, error)
}

// Store persists recordings. Insert must return recordings.ErrDuplicateRecording for a
// source file id that already exists.
type Store interface {
	ExistsBySourceFileID(ctx context.Context, sourceFileID string) (bool, error)
	Insert(ctx context.Context, rec *models.Recording) error
}

// IngestHook runs after a recording was inserted. Hooks must not fail the pass.
type IngestHook func(ctx context.Context, rec *models.Recording)

// FileError describes one file that could not be ingested.
type FileError struct {
	SourceFileID string `json:"source_file_id"`
	MeetingID    string `json:"meeting_id"`
	Error        string `json:"error"`
}

// Result counts the outcome of one pass.
type Result struct {
	Meetings int         `json:"meetings"`
	Ingested int         `json:"ingested"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Errors   []FileError `json:"errors,omitempty"`
}

func (r *Result) fail(file zoom.RecordingFile, meetingID string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, FileError{SourceFileID: file.ID, MeetingID: meetingID, Error: err.Error()})
}

// FormatDuration renders meeting minutes as "<n> min". Negative values render as "0 min".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d min", minutes)
}

// Reconciler copies eligible Zoom recording files into the recording store.
// Running it any number of times over the same window yields at most one
// recording per source file id.
type Reconciler struct {
	source            Source
	registry          Registry
	store             Store
	defaultInstructor string
	hooks             []IngestHook
	logger            *zap.Logger
}

// NewReconciler creates a reconciler. defaultInstructor is used when a meeting has no scheduled class.
func NewReconciler(source Source, registry Registry, store Store, defaultInstructor string, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultInstructor == "" {
		defaultInstructor = "Instructor"
	}
	return &Reconciler{
		source:            source,
		registry:          registry,
		store:             store,
		defaultInstructor: defaultInstructor,
		logger:            logger,
	}
}

// OnIngest registers a hook called for every newly inserted recording.
func (r *Reconciler) OnIngest(h IngestHook) {
	r.hooks = append(r.hooks, h)
}

// Reconcile runs one pass over window. It returns an error only when the source cannot be
// read or ctx is cancelled; per-file failures are counted in Result and the pass goes on.
// Cancellation is honoured between files, so the returned Result covers exactly the files
// handled before it.
func (r *Reconciler) Reconcile(ctx context.Context, w Window, filter Filter) (*Result, error) {
	if filter == nil {
		filter = StrictVideoFilter
	}
	meetings, err := r.source.ListRecordings(ctx, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	res := &Result{Meetings: len(meetings)}
	for _, m := range meetings {
		if err := r.reconcileMeeting(ctx, m, filter, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Reconciler) reconcileMeeting(ctx context.Context, m zoom.Meeting, filter Filter, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	files := EligibleFiles(m.RecordingFiles, filter)
	if len(files) == 0 {
		return nil
	}
	meetingID := m.ID.String()
	base := r.baseRecording(ctx, m)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.ID == "" {
			res.fail(f, meetingID, errors.New("recording file has no id"))
			continue
		}
		exists, err := r.store.ExistsBySourceFileID(ctx, f.ID)
		if err != nil {
			r.logger.Error("check recording exists failed", zap.Error(err), zap.String("source_file_id", f.ID))
			res.fail(f, meetingID, err)
			continue
		}
		if exists {
			res.Skipped++
			continue
		}

		rec := base
		rec.SourceFileID = f.ID
		rec.PlayURL = f.PlayURL
		rec.DownloadURL = f.DownloadURL
		rec.FileSize = f.FileSize
		err = r.store.Insert(ctx, &rec)
		switch {
		case errors.Is(err, recordings.ErrDuplicateRecording):
			// another pass inserted it between the check and the insert
			res.Skipped++
		case err != nil:
			r.logger.Error("insert recording failed", zap.Error(err),
				zap.String("source_file_id", f.ID), zap.String("meeting_id", meetingID))
			res.fail(f, meetingID, err)
		default:
			res.Ingested++
			r.logger.Info("recording ingested", zap.String("source_file_id", f.ID),
				zap.String("meeting_id", meetingID), zap.String("title", rec.Title))
			for _, h := range r.hooks {
				h(ctx, &rec)
			}
		}
	}
	return nil
}

// baseRecording fills the meeting-level fields, enriched from the scheduled class when one exists.
func (r *Reconciler) baseRecording(ctx context.Context, m zoom.Meeting) models.Recording {
	meetingID := m.ID.String()
	rec := models.Recording{
		MeetingID:     meetingID,
		Title:         m.Topic,
		Instructor:    r.defaultInstructor,
		Duration:      FormatDuration(m.Duration),
		ArchiveStatus: models.ArchiveStatusNone,
	}
	if t, err := time.Parse(time.RFC3339, m.StartTime); err == nil {
		rec.OccurredAt = &t
	}

	class, err := r.registry.FindByZoomMeetingID(ctx, meetingID)
	if err != nil {
		r.logger.Warn("scheduled class lookup failed, using meeting topic", zap.Error(err), zap.String("meeting_id", meetingID))
		return rec
	}
	if class == nil {
		return rec
	}
	if class.Title != "" {
		rec.Title = class.Title
	}
	if class.Instructor != "" {
		rec.Instructor = class.Instructor
	}
	rec.CourseID = class.CourseID
	rec.BatchID = class.BatchID
	return rec
}
