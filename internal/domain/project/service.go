package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/repository"
	"github.com/google/uuid"
)

// Service maintains the library of recently opened project files.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new project service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// RegisterRequest defines project registration inputs.
type RegisterRequest struct {
	Path string
	Name string
}

// Register records that a project file was opened or created. A path already
// in the library is touched instead of duplicated.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Project, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, ErrInvalidInput
	}
	path := filepath.Clean(req.Path)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	now := s.now()

	existing, err := s.repo.GetByPath(ctx, path)
	if err == nil {
		if err := s.repo.Touch(ctx, existing.ID, name, now); err != nil {
			return nil, fmt.Errorf("touching project: %w", err)
		}
		existing.Name = name
		existing.OpenedAt = now
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("looking up project: %w", err)
	}

	proj := &Project{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		CreatedAt: now,
		OpenedAt:  now,
	}
	if err := s.repo.Create(ctx, proj); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project added to library", "project_id", proj.ID, "path", path)
	return proj, nil
}

// RecordSave bumps the project's revision after a successful save.
func (s *Service) RecordSave(ctx context.Context, id string, entryCount int) (int64, error) {
	rev, err := s.repo.IncrementRevision(ctx, id, entryCount, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrProjectNotFound
		}
		return 0, fmt.Errorf("recording save: %w", err)
	}
	return rev, nil
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	proj, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

// List returns the most recently opened projects first.
func (s *Service) List(ctx context.Context, limit int) ([]Project, error) {
	return s.repo.List(ctx, limit)
}
