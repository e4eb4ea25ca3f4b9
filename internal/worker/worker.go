package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/queue"
	"github.com/classroom-lms/backend/pkg/storage"
)

// Downloader streams a Zoom recording file. *zoom.Client implements it.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Uploader writes an object to the archive bucket. *storage.S3 implements it.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
}

// RecordingStore is the subset of the recordings repository the archiver needs.
type RecordingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	SetArchiveStatus(ctx context.Context, id uuid.UUID, status string) error
	SetArchiveResult(ctx context.Context, id uuid.UUID, key string, fileSize int64) error
}

// JobQueue is the job source. *queue.Queue implements it.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
	Requeue(ctx context.Context, job *queue.Job) error
}

// ShutdownGrace is how long a job in flight may keep running after Run's context is cancelled.
const ShutdownGrace = 20 * time.Second

// EventPublisher notifies dashboards. *realtime.Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic, event string, data interface{}) error
}

// RecordingArchiver processes archive jobs: download from Zoom, upload to S3, update DB.
type RecordingArchiver struct {
	recordings   RecordingStore
	zoom         Downloader
	s3           Uploader
	queue        JobQueue
	events       EventPublisher
	pollTimeout   time.Duration
	retryBackoff  time.Duration
	shutdownGrace time.Duration
	logger        *zap.Logger
}

// NewRecordingArchiver creates an archive processor. events may be nil.
func NewRecordingArchiver(recordings RecordingStore, zoom Downloader, s3 Uploader, q JobQueue, events EventPublisher, logger *zap.Logger) *RecordingArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingArchiver{
		recordings:   recordings,
		zoom:         zoom,
		s3:           s3,
		queue:        q,
		events:       events,
		pollTimeout:   5 * time.Second,
		retryBackoff:  queue.RetryBackoff,
		shutdownGrace: ShutdownGrace,
		logger:        logger,
	}
}

// Process executes one archive job.
func (p *RecordingArchiver) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recordings.GetByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("get recording: %w", err)
	}
	if rec == nil {
		// deleted by an admin after the job was queued
		p.logger.Info("recording gone, dropping archive job", zap.String("recording_id", payload.RecordingID.String()))
		return nil
	}
	if rec.ArchiveStatus == models.ArchiveStatusArchived {
		p.logger.Info("recording already archived", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	url := payload.DownloadURL
	if url == "" {
		url = rec.DownloadURL
	}
	body, size, err := p.zoom.Download(ctx, url)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer body.Close()

	key := storage.RecordingKey(rec.CourseID, rec.ID)
	if err := p.s3.Upload(ctx, key, storage.ContentTypeMP4, body, size); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if size <= 0 {
		size = rec.FileSize
	}
	if err := p.recordings.SetArchiveResult(ctx, rec.ID, key, size); err != nil {
		return fmt.Errorf("update db: %w", err)
	}
	rec.ArchiveStatus = models.ArchiveStatusArchived
	rec.ArchiveKey = key

	p.logger.Info("recording archived", zap.String("recording_id", rec.ID.String()), zap.String("s3_key", key))
	if p.events != nil {
		if err := p.events.Publish(ctx, models.TopicRecordings, models.EventRecordingArchived, rec); err != nil {
			p.logger.Warn("publish recording.archived failed", zap.Error(err))
		}
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Once ctx is cancelled no new
// job is taken; the job in flight gets shutdownGrace to finish and is requeued if it cannot.
func (p *RecordingArchiver) Run(ctx context.Context) {
	p.logger.Info("recording archive worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording archive worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		err = p.runJob(ctx, job)
		switch {
		case err == nil:
		case ctx.Err() != nil && errors.Is(err, context.Canceled):
			p.requeue(job)
		default:
			p.fail(job, err)
			p.sleep(ctx)
		}
	}
}

// runJob processes job on a context that outlives ctx by at most shutdownGrace.
func (p *RecordingArchiver) runJob(ctx context.Context, job *queue.Job) error {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		t := time.NewTimer(p.shutdownGrace)
		defer t.Stop()
		select {
		case <-t.C:
			p.logger.Warn("archive job still running after shutdown grace, cancelling", zap.String("job_id", job.ID))
			cancel()
		case <-jobCtx.Done():
		}
	})
	defer stop()
	return p.Process(jobCtx, job)
}

// requeue returns an interrupted job to the queue. Run's context is already done here.
func (p *RecordingArchiver) requeue(job *queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.queue.Requeue(ctx, job); err != nil {
		p.logger.Error("requeue interrupted job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	p.logger.Info("archive job interrupted by shutdown, requeued", zap.String("job_id", job.ID))
}

// fail records a failed attempt. It does not use Run's context so the outcome is stored
// even while the worker is stopping.
func (p *RecordingArchiver) fail(job *queue.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if reErr := p.queue.Retry(ctx, job); reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
	}
	if !job.Exhausted() {
		return
	}
	var payload queue.RecordingArchivePayload
	if json.Unmarshal(job.Payload, &payload) == nil && payload.RecordingID != uuid.Nil {
		if err := p.recordings.SetArchiveStatus(ctx, payload.RecordingID, models.ArchiveStatusFailed); err != nil {
			p.logger.Warn("mark archive failed", zap.Error(err), zap.String("recording_id", payload.RecordingID.String()))
		}
	}
}

func (p *RecordingArchiver) sleep(ctx context.Context) {
	t := time.NewTimer(p.retryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
