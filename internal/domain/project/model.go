package project

import "time"

// Project is a project file known to the library. Revision counts successful
// saves, like a monotonic tick.
type Project struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Revision   int64      `json:"revision"`
	EntryCount int        `json:"entry_count"`
	CreatedAt  time.Time  `json:"created_at"`
	OpenedAt   time.Time  `json:"opened_at"`
	SavedAt    *time.Time `json:"saved_at,omitempty"`
}
