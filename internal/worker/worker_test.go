package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/pkg/queue"
)

type memRecordings struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*models.Recording
}

func (m *memRecordings) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRecordings) SetArchiveStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[id].ArchiveStatus = status
	return nil
}

func (m *memRecordings) SetArchiveResult(_ context.Context, id uuid.UUID, key string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[id].ArchiveKey = key
	m.recs[id].ArchiveStatus = models.ArchiveStatusArchived
	m.recs[id].FileSize = size
	return nil
}

func (m *memRecordings) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[id].ArchiveStatus
}

type fakeDownloader struct {
	err   error
	calls int
}

func (f *fakeDownloader) Download(_ context.Context, url string) (io.ReadCloser, int64, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return io.NopCloser(bytes.NewBufferString("mp4-data")), 8, nil
}

// gatedDownloader holds every download until release is closed or ctx ends.
type gatedDownloader struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedDownloader) Download(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return io.NopCloser(bytes.NewBufferString("mp4-data")), 8, nil
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("download: %w", ctx.Err())
	}
}

type fakeUploader struct {
	keys []string
	data []string
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, string(b))
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs chan *queue.Job
	dlq  []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	select {
	case j := <-q.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	}
}

func (q *fakeQueue) Retry(ctx context.Context, job *queue.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.Attempt++
	if job.Exhausted() {
		q.mu.Lock()
		q.dlq = append(q.dlq, job)
		q.mu.Unlock()
		return nil
	}
	q.jobs <- job
	return nil
}

func (q *fakeQueue) Requeue(ctx context.Context, job *queue.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.jobs <- job
	return nil
}

func (q *fakeQueue) dlqLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

type fakeEvents struct{ events []string }

func (f *fakeEvents) Publish(_ context.Context, topic, event string, _ interface{}) error {
	f.events = append(f.events, topic+":"+event)
	return nil
}

func archiveJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeRecordingArchive, queue.RecordingArchivePayload{RecordingID: id, DownloadURL: "https://zoom.us/rec/download/x"})
	require.NoError(t, err)
	return job
}

func TestProcess_ArchivesRecording(t *testing.T) {
	id := uuid.New()
	course := uuid.New()
	store := &memRecordings{recs: map[uuid.UUID]*models.Recording{
		id: {ID: id, CourseID: &course, ArchiveStatus: models.ArchiveStatusPending},
	}}
	up := &fakeUploader{}
	events := &fakeEvents{}
	a := NewRecordingArchiver(store, &fakeDownloader{}, up, nil, events, nil)

	require.NoError(t, a.Process(context.Background(), archiveJob(t, id)))
	require.Equal(t, []string{"recordings/" + course.String() + "/" + id.String() + ".mp4"}, up.keys)
	assert.Equal(t, []string{"mp4-data"}, up.data)
	assert.Equal(t, models.ArchiveStatusArchived, store.status(id))
	assert.Equal(t, int64(8), store.recs[id].FileSize)
	assert.Equal(t, []string{models.TopicRecordings + ":" + models.EventRecordingArchived}, events.events)
}

func TestProcess_SkipsArchivedAndMissing(t *testing.T) {
	id := uuid.New()
	store := &memRecordings{recs: map[uuid.UUID]*models.Recording{
		id: {ID: id, ArchiveStatus: models.ArchiveStatusArchived},
	}}
	dl := &fakeDownloader{}
	a := NewRecordingArchiver(store, dl, &fakeUploader{}, nil, nil, nil)

	require.NoError(t, a.Process(context.Background(), archiveJob(t, id)))
	require.NoError(t, a.Process(context.Background(), archiveJob(t, uuid.New())))
	assert.Equal(t, 0, dl.calls)
}

func TestProcess_UnknownJobType(t *testing.T) {
	a := NewRecordingArchiver(&memRecordings{}, &fakeDownloader{}, &fakeUploader{}, nil, nil, nil)
	err := a.Process(context.Background(), &queue.Job{Type: "email"})
	assert.Error(t, err)
}

func TestRun_RetriesThenDeadLetters(t *testing.T) {
	id := uuid.New()
	store := &memRecordings{recs: map[uuid.UUID]*models.Recording{
		id: {ID: id, ArchiveStatus: models.ArchiveStatusPending},
	}}
	dl := &fakeDownloader{err: errors.New("zoom 503")}
	q := &fakeQueue{jobs: make(chan *queue.Job, 4)}
	a := NewRecordingArchiver(store, dl, &fakeUploader{}, q, nil, nil)
	a.retryBackoff = time.Millisecond
	a.pollTimeout = 10 * time.Millisecond

	q.jobs <- archiveJob(t, id)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return q.dlqLen() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.status(id) == models.ArchiveStatusFailed }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	// the first attempt plus two retries
	assert.Equal(t, 3, dl.calls)
	assert.Equal(t, queue.MaxAttempts, dl.calls)
	assert.Equal(t, queue.MaxAttempts, q.dlq[0].Attempt)
}

func TestRun_ShutdownLetsJobInFlightFinish(t *testing.T) {
	id := uuid.New()
	store := &memRecordings{recs: map[uuid.UUID]*models.Recording{
		id: {ID: id, ArchiveStatus: models.ArchiveStatusPending},
	}}
	dl := &gatedDownloader{started: make(chan struct{}, 1), release: make(chan struct{})}
	up := &fakeUploader{}
	q := &fakeQueue{jobs: make(chan *queue.Job, 4)}
	a := NewRecordingArchiver(store, dl, up, q, nil, nil)
	a.pollTimeout = 10 * time.Millisecond
	a.shutdownGrace = 5 * time.Second

	q.jobs <- archiveJob(t, id)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	<-dl.started
	cancel()
	select {
	case <-done:
		t.Fatal("worker returned while a job was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(dl.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after the job finished")
	}
	assert.Equal(t, models.ArchiveStatusArchived, store.status(id))
	assert.Len(t, up.keys, 1)
	assert.Empty(t, q.jobs)
	assert.Empty(t, q.dlq)
}

func TestRun_ShutdownRequeuesJobPastGrace(t *testing.T) {
	id := uuid.New()
	store := &memRecordings{recs: map[uuid.UUID]*models.Recording{
		id: {ID: id, ArchiveStatus: models.ArchiveStatusPending},
	}}
	dl := &gatedDownloader{started: make(chan struct{}, 1), release: make(chan struct{})}
	q := &fakeQueue{jobs: make(chan *queue.Job, 4)}
	a := NewRecordingArchiver(store, dl, &fakeUploader{}, q, nil, nil)
	a.pollTimeout = 10 * time.Millisecond
	a.shutdownGrace = 20 * time.Millisecond

	job := archiveJob(t, id)
	q.jobs <- job
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	<-dl.started
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not give up on the job after the grace period")
	}

	require.Len(t, q.jobs, 1)
	requeued := <-q.jobs
	assert.Equal(t, job.ID, requeued.ID)
	assert.Equal(t, 0, requeued.Attempt)
	assert.Empty(t, q.dlq)
	assert.Equal(t, models.ArchiveStatusPending, store.status(id))
}
