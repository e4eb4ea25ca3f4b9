package models

import (
	"time"

	"github.com/google/uuid"
)

// Archive states of a recording copy in object storage.
const (
	ArchiveStatusNone     = "none"
	ArchiveStatusPending  = "pending"
	ArchiveStatusArchived = "archived"
	ArchiveStatusFailed   = "failed"
)

// Recording is a classroom video ingested from a Zoom cloud recording file.
// SourceFileID is unique across all recordings.
type Recording struct {
	ID            uuid.UUID  `json:"id"`
	SourceFileID  string     `json:"source_file_id"`
	MeetingID     string     `json:"meeting_id"`
	Title         string     `json:"title"`
	Instructor    string     `json:"instructor"`
	Duration      string     `json:"duration"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
	PlayURL       string     `json:"play_url,omitempty"`
	DownloadURL   string     `json:"download_url,omitempty"`
	FileSize      int64      `json:"file_size"`
	CourseID      *uuid.UUID `json:"course_id,omitempty"`
	BatchID       *uuid.UUID `json:"batch_id,omitempty"`
	ArchiveStatus string     `json:"archive_status"`
	ArchiveKey    string     `json:"archive_key,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
