package zoom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DateLayout is the calendar-date format the recordings endpoint accepts.
const DateLayout = "2006-01-02"

// Values of RecordingFile fields the sync job cares about.
const (
	FileTypeMP4 = "MP4"
	FileTypeM4A = "M4A"

	RecordingTypeAudioOnly = "audio_only"

	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ID is a Zoom identifier. Meeting ids arrive as JSON numbers, most other ids as strings.
type ID string

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*id = ""
		return nil
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("zoom id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as text.
func (id ID) String() string { return string(id) }

// Meeting is one meeting instance with cloud recordings.
type Meeting struct {
	ID             ID              `json:"id"`
	UUID           string          `json:"uuid"`
	Topic          string          `json:"topic"`
	StartTime      string          `json:"start_time"`
	Duration       int             `json:"duration"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// RecordingFile is one artifact of a recorded meeting. ID is stable across fetches.
type RecordingFile struct {
	ID             string `json:"id"`
	MeetingID      string `json:"meeting_id"`
	RecordingStart string `json:"recording_start"`
	RecordingEnd   string `json:"recording_end"`
	FileType       string `json:"file_type"`
	FileExtension  string `json:"file_extension"`
	FileSize       int64  `json:"file_size"`
	PlayURL        string `json:"play_url"`
	DownloadURL    string `json:"download_url"`
	Status         string `json:"status"`
	RecordingType  string `json:"recording_type"`
}

type recordingsPage struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	PageSize      int       `json:"page_size"`
	TotalRecords  int       `json:"total_records"`
	NextPageToken string    `json:"next_page_token"`
	Meetings      []Meeting `json:"meetings"`
}

// MeetingSettings is the subset of meeting settings set when scheduling a class.
type MeetingSettings struct {
	AutoRecording  string `json:"auto_recording"`
	JoinBeforeHost bool   `json:"join_before_host"`
	WaitingRoom    bool   `json:"waiting_room"`
}

// CreateMeetingRequest is the body of POST /users/{userId}/meetings.
type CreateMeetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone,omitempty"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  MeetingSettings `json:"settings"`
}

// ScheduledMeeting is the part of the create-meeting response the LMS stores.
type ScheduledMeeting struct {
	ID        ID     `json:"id"`
	Topic     string `json:"topic"`
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
	JoinURL   string `json:"join_url"`
	StartURL  string `json:"start_url"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}
