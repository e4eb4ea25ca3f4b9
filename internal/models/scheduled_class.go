package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledClass is a live class scheduled as a Zoom meeting. Its metadata
// enriches recordings produced by that meeting.
type ScheduledClass struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Instructor      string     `json:"instructor"`
	CourseID        *uuid.UUID `json:"course_id,omitempty"`
	BatchID         *uuid.UUID `json:"batch_id,omitempty"`
	ZoomMeetingID   string     `json:"zoom_meeting_id,omitempty"`
	JoinURL         string     `json:"join_url,omitempty"`
	StartURL        string     `json:"start_url,omitempty"`
	StartsAt        time.Time  `json:"starts_at"`
	DurationMinutes int        `json:"duration_minutes"`
	CreatedBy       *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
