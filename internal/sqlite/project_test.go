package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/repository"
	"github.com/stretchr/testify/require"
)

func insertProject(t *testing.T, db *DB, id, path string) {
	t.Helper()
	now := time.Now()
	repo := NewProjectRepository(db)
	require.NoError(t, repo.Create(context.Background(), &project.Project{
		ID:        id,
		Name:      id,
		Path:      path,
		CreatedAt: now,
		OpenedAt:  now,
	}))
}

func TestProjectRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	insertProject(t, db, "p1", "/work/quarry.rotgis")

	retrieved, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "/work/quarry.rotgis", retrieved.Path)
	require.Nil(t, retrieved.SavedAt)

	byPath, err := repo.GetByPath(ctx, "/work/quarry.rotgis")
	require.NoError(t, err)
	require.Equal(t, "p1", byPath.ID)

	_, err = repo.Get(ctx, "nonexistent")
	require.Equal(t, repository.ErrNotFound, err)
	_, err = repo.GetByPath(ctx, "/nowhere")
	require.Equal(t, repository.ErrNotFound, err)
}

func TestProjectRepository_CreateConflict(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	insertProject(t, db, "p1", "/work/quarry.rotgis")

	err := repo.Create(context.Background(), &project.Project{ID: "p2", Name: "dup", Path: "/work/quarry.rotgis"})
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestProjectRepository_ListOrdersByOpened(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	insertProject(t, db, "p1", "/work/a.rotgis")
	insertProject(t, db, "p2", "/work/b.rotgis")
	require.NoError(t, repo.Touch(ctx, "p1", "a", time.Now().Add(time.Hour)))

	projects, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, "p1", projects[0].ID)

	projects, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	require.Equal(t, repository.ErrNotFound, repo.Touch(ctx, "missing", "x", time.Now()))
}

func TestProjectRepository_IncrementRevision(t *testing.T) {
	db := NewTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()
	insertProject(t, db, "p1", "/work/a.rotgis")

	rev, err := repo.IncrementRevision(ctx, "p1", 3, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)

	rev, err = repo.IncrementRevision(ctx, "p1", 4, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), rev)

	proj, err := repo.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 4, proj.EntryCount)
	require.NotNil(t, proj.SavedAt)

	_, err = repo.IncrementRevision(ctx, "missing", 0, time.Now())
	require.Equal(t, repository.ErrNotFound, err)
}
