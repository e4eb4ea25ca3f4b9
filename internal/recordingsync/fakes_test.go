package recordingsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classroom-lms/backend/internal/models"
	"github.com/classroom-lms/backend/internal/recordings"
	"github.com/classroom-lms/backend/internal/zoom"
)

type fakeSource struct {
	mu       sync.Mutex
	meetings []zoom.Meeting
	err      error
	calls    int
	windows  []Window
	block    chan struct{} // when set, ListRecordings waits on it
}

func (s *fakeSource) ListRecordings(ctx context.Context, from, to time.Time) ([]zoom.Meeting, error) {
	s.mu.Lock()
	s.calls++
	s.windows = append(s.windows, Window{From: from, To: to})
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.meetings, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeRegistry struct {
	classes map[string]*models.ScheduledClass
	err     error
}

func (r *fakeRegistry) FindByZoomMeetingID(_ context.Context, id string) (*models.ScheduledClass, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.classes[id], nil
}

type memStore struct {
	mu        sync.Mutex
	recs      map[string]models.Recording
	inserts   int
	insertErr map[string]error
	existsErr error
	// raceIDs are reported absent by ExistsBySourceFileID but rejected by Insert,
	// like a concurrent pass that won the insert.
	raceIDs map[string]bool
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]models.Recording{}, insertErr: map[string]error{}, raceIDs: map[string]bool{}}
}

func (s *memStore) ExistsBySourceFileID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.recs[id]
	return ok, nil
}

func (s *memStore) Insert(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if err := s.insertErr[rec.SourceFileID]; err != nil {
		return err
	}
	if _, ok := s.recs[rec.SourceFileID]; ok || s.raceIDs[rec.SourceFileID] {
		return recordings.ErrDuplicateRecording
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	s.recs[rec.SourceFileID] = *rec
	return nil
}

func (s *memStore) get(id string) (models.Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	return r, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type published struct {
	topic, event string
	data         interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, event, data})
	return p.err
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.event)
	}
	return out
}

var errBoom = errors.New("boom")

func mp4(id string) zoom.RecordingFile {
	return zoom.RecordingFile{
		ID:            id,
		FileType:      zoom.FileTypeMP4,
		RecordingType: "shared_screen_with_speaker_view",
		Status:        zoom.StatusCompleted,
		PlayURL:       "https://zoom.us/rec/play/" + id,
		DownloadURL:   "https://zoom.us/rec/download/" + id,
		FileSize:      1024,
	}
}

// scenarioM1 is one meeting with a video file R1 and an audio-only file R2.
func scenarioM1() zoom.Meeting {
	return zoom.Meeting{
		ID:        "M1",
		Topic:     "Intro to Networking",
		StartTime: "2024-03-01T10:00:00Z",
		Duration:  120,
		RecordingFiles: []zoom.RecordingFile{
			{ID: "R1", FileType: "MP4", RecordingType: "shared_screen", Status: "completed"},
			{ID: "R2", FileType: "M4A", RecordingType: "audio_only", Status: "completed"},
		},
	}
}
