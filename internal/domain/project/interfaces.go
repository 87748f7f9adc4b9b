package project

import (
	"context"
	"time"
)

// Repository provides persistence for the project library.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	GetByPath(ctx context.Context, path string) (*Project, error)
	List(ctx context.Context, limit int) ([]Project, error)
	Touch(ctx context.Context, id, name string, openedAt time.Time) error
	IncrementRevision(ctx context.Context, id string, entryCount int, savedAt time.Time) (int64, error)
}
