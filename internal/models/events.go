package models

// TopicRecordings is the realtime topic admin and instructor dashboards subscribe to.
const TopicRecordings = "recordings"

// Events published on TopicRecordings.
const (
	EventRecordingIngested = "recording.ingested"
	EventRecordingArchived = "recording.archived"
	EventSyncCompleted     = "sync.completed"
)
