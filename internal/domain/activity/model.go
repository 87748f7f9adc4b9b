package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeProjectOpened     ActivityType = "project_opened"
	TypeEntryAdded        ActivityType = "entry_added"
	TypeEntryDeleted      ActivityType = "entry_deleted"
	TypeVisibilityChanged ActivityType = "visibility_changed"
	TypeProjectSaved      ActivityType = "project_saved"
	TypeSaveFailed        ActivityType = "save_failed"
	TypeDeviceLost        ActivityType = "device_lost"
	TypeViewerRecovered   ActivityType = "viewer_recovered"
	TypeRecoveryFailed    ActivityType = "recovery_failed"
)

// ActivityEntry represents an event in the activity journal
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProjectID    string       `json:"project_id"`
	EntryID      *string      `json:"entry_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
	Revision     int64        `json:"revision"`
}

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProjectID    string
	EntryID      *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
