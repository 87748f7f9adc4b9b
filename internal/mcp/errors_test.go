package mcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("deleting: %w", document.ErrEntryNotFound), "ENTRY_NOT_FOUND"},
		{document.ErrLayerNotFound, "LAYER_NOT_FOUND"},
		{document.ErrDuplicateID, "DUPLICATE_ID"},
		{document.ErrUnsupportedFormat, "UNSUPPORTED_FORMAT"},
		{document.ErrInvalidInput, "INVALID_INPUT"},
		{project.ErrProjectNotFound, "PROJECT_NOT_FOUND"},
		{scene.ErrNoViewer, "NO_VIEWER"},
		{scene.ErrRebuildInProgress, "REBUILD_IN_PROGRESS"},
		{scene.ErrRetriggerThrottled, "RETRIGGER_THROTTLED"},
		{autosave.ErrNoPath, "NO_SAVE_PATH"},
		{autosave.ErrSaveInProgress, "SAVE_IN_PROGRESS"},
		{engine.ErrClosed, "SHUTTING_DOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			apiErr := MapError(tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}

	assert.Nil(t, MapError(nil))
	assert.Nil(t, MapError(errors.New("disk on fire")))
}

func TestToolError(t *testing.T) {
	plain := errors.New("disk on fire")
	assert.Same(t, plain, toolError(plain))

	var apiErr *APIError
	require.ErrorAs(t, toolError(autosave.ErrNoPath), &apiErr)
	assert.Equal(t, "NO_SAVE_PATH: project has no file yet (Call save_project_as)", apiErr.Error())
}
