package recordingsync

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/queue"
)

// ArchiveEnqueuer pushes archive jobs. *queue.Queue implements it.
type ArchiveEnqueuer interface {
	EnqueueRecordingArchive(ctx context.Context, payload queue.RecordingArchivePayload) error
}

// ArchiveStatusSetter marks recordings as queued for archiving. *recordings.Repository implements it.
type ArchiveStatusSetter interface {
	SetArchiveStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ArchiveHook queues an S3 archive job for every ingested recording with a download URL.
func ArchiveHook(q ArchiveEnqueuer, status ArchiveStatusSetter, logger *zap.Logger) IngestHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, rec *models.Recording) {
		if rec.DownloadURL == "" {
			return
		}
		err := q.EnqueueRecordingArchive(ctx, queue.RecordingArchivePayload{
			RecordingID: rec.ID,
			CourseID:    rec.CourseID,
			DownloadURL: rec.DownloadURL,
		})
		if err != nil {
			logger.Error("enqueue recording archive failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			return
		}
		if err := status.SetArchiveStatus(ctx, rec.ID, models.ArchiveStatusPending); err != nil {
			logger.Warn("mark archive pending failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			return
		}
		rec.ArchiveStatus = models.ArchiveStatusPending
	}
}

// EventHook publishes recording.ingested for every ingested recording.
func EventHook(events EventPublisher, logger *zap.Logger) IngestHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, rec *models.Recording) {
		if err := events.Publish(ctx, models.TopicRecordings, models.EventRecordingIngested, rec); err != nil {
			logger.Warn("publish recording.ingested failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		}
	}
}
