package mcp

import (
	"errors"
	"fmt"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, document.ErrEntryNotFound):
		return &APIError{Code: "ENTRY_NOT_FOUND", Message: "entry not found", RecoveryHint: "Call get_status for entry ids"}
	case errors.Is(err, document.ErrLayerNotFound):
		return &APIError{Code: "LAYER_NOT_FOUND", Message: "layer not found", RecoveryHint: "Call get_document for layer ids"}
	case errors.Is(err, document.ErrDuplicateID):
		return &APIError{Code: "DUPLICATE_ID", Message: "id already in use", RecoveryHint: "Omit id to generate one"}
	case errors.Is(err, document.ErrUnsupportedFormat):
		return &APIError{Code: "UNSUPPORTED_FORMAT", Message: "not a project file this version can read"}
	case errors.Is(err, document.ErrInvalidInput), errors.Is(err, project.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Call list_projects"}
	case errors.Is(err, scene.ErrNoViewer):
		return &APIError{Code: "NO_VIEWER", Message: "viewer is not running", RecoveryHint: "Call retrigger_viewer"}
	case errors.Is(err, scene.ErrRebuildInProgress):
		return &APIError{Code: "REBUILD_IN_PROGRESS", Message: "viewer is being rebuilt", RecoveryHint: "Retry after get_status reports ready"}
	case errors.Is(err, scene.ErrRetriggerThrottled):
		return &APIError{Code: "RETRIGGER_THROTTLED", Message: "retrigger requested too soon", RecoveryHint: "Wait a few seconds"}
	case errors.Is(err, autosave.ErrNoPath):
		return &APIError{Code: "NO_SAVE_PATH", Message: "project has no file yet", RecoveryHint: "Call save_project_as"}
	case errors.Is(err, autosave.ErrSaveInProgress):
		return &APIError{Code: "SAVE_IN_PROGRESS", Message: "another save is running", RecoveryHint: "Retry shortly"}
	case errors.Is(err, engine.ErrClosed), errors.Is(err, scene.ErrClosed), errors.Is(err, autosave.ErrClosed):
		return &APIError{Code: "SHUTTING_DOWN", Message: "server is shutting down"}
	default:
		return nil
	}
}

// toolError returns the mapped error when there is one.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
