package project_test

import (
	"context"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/repository"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProjectService_RegisterCreates(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.ProjectRepository{}
	repo.On("GetByPath", ctx, "/work/quarry.rotgis").Return((*project.Project)(nil), repository.ErrNotFound)
	repo.On("Create", ctx, mock.Anything).Return(nil)

	svc := project.NewService(repo, nil)
	proj, err := svc.Register(ctx, project.RegisterRequest{Path: "/work/quarry.rotgis"})
	require.NoError(t, err)
	require.NotEmpty(t, proj.ID)
	require.Equal(t, "quarry", proj.Name)
	repo.AssertExpectations(t)
}

func TestProjectService_RegisterTouchesExisting(t *testing.T) {
	ctx := context.Background()

	existing := &project.Project{ID: "p1", Name: "old", Path: "/work/quarry.rotgis", Revision: 4}
	repo := &mocks.ProjectRepository{}
	repo.On("GetByPath", ctx, "/work/quarry.rotgis").Return(existing, nil)
	repo.On("Touch", ctx, "p1", "Quarry", mock.Anything).Return(nil)

	svc := project.NewService(repo, nil)
	proj, err := svc.Register(ctx, project.RegisterRequest{Path: "/work/quarry.rotgis", Name: "Quarry"})
	require.NoError(t, err)
	require.Equal(t, "p1", proj.ID)
	require.Equal(t, int64(4), proj.Revision)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProjectService_RegisterValidation(t *testing.T) {
	svc := project.NewService(&mocks.ProjectRepository{}, nil)
	_, err := svc.Register(context.Background(), project.RegisterRequest{Path: "  "})
	require.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestProjectService_RecordSaveNotFound(t *testing.T) {
	ctx := context.Background()

	repo := &mocks.ProjectRepository{}
	repo.On("IncrementRevision", ctx, "missing", 2, mock.Anything).Return(int64(0), repository.ErrNotFound)

	svc := project.NewService(repo, nil)
	_, err := svc.RecordSave(ctx, "missing", 2)
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}
