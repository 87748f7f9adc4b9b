package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/repository"
)

var _ project.Repository = (*ProjectRepository)(nil)

// ProjectRepository implements project.Repository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, path, revision, entry_count, created_at, opened_at, saved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*project.Project, error) {
	var proj project.Project
	var savedAt sql.NullTime
	if err := row.Scan(
		&proj.ID,
		&proj.Name,
		&proj.Path,
		&proj.Revision,
		&proj.EntryCount,
		&proj.CreatedAt,
		&proj.OpenedAt,
		&savedAt,
	); err != nil {
		return nil, err
	}
	if savedAt.Valid {
		t := savedAt.Time
		proj.SavedAt = &t
	}
	return &proj, nil
}

// Create inserts a project into the library
func (r *ProjectRepository) Create(ctx context.Context, proj *project.Project) error {
	query := `
		INSERT INTO projects (id, name, path, revision, entry_count, created_at, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.ID,
		proj.Name,
		proj.Path,
		proj.Revision,
		proj.EntryCount,
		proj.CreatedAt,
		proj.OpenedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID
func (r *ProjectRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return proj, nil
}

// GetByPath retrieves a project by its file path
func (r *ProjectRepository) GetByPath(ctx context.Context, path string) (*project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE path = ?`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by path: %w", err)
	}

	return proj, nil
}

// List returns library projects, most recently opened first
func (r *ProjectRepository) List(ctx context.Context, limit int) ([]project.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY opened_at DESC, created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// Touch records that a project was opened again
func (r *ProjectRepository) Touch(ctx context.Context, id, name string, openedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, opened_at = ? WHERE id = ?`,
		name, openedAt, id)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementRevision atomically bumps the save revision and returns the new value
func (r *ProjectRepository) IncrementRevision(ctx context.Context, id string, entryCount int, savedAt time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE projects
		SET revision = revision + 1, entry_count = ?, saved_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, updateQuery, entryCount, savedAt, id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment revision: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return 0, repository.ErrNotFound
	}

	var revision int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM projects WHERE id = ?`, id).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("failed to get new revision: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return revision, nil
}
