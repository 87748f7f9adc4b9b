package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeEntryAdded,
		Summary:      "Imported north",
		Details:      `{"id":"pc-1"}`,
		Revision:     1,
	}
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeProjectSaved,
		Summary:      "Saved",
		Revision:     2,
	}

	require.NoError(t, repo.Log(ctx, entry1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Log(ctx, entry2))
	require.NotZero(t, entry1.ID)

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.Equal(t, `{"id":"pc-1"}`, entries[1].Details)
}

func TestActivityRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewActivityRepository(db)
	entryID := "pc-1"
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		EntryID:      &entryID,
		ActivityType: activity.TypeVisibilityChanged,
		Summary:      "Hid north",
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p2",
		ActivityType: activity.TypeDeviceLost,
		Summary:      "Device lost",
	}))

	activityType := activity.TypeVisibilityChanged
	entries, err := repo.List(ctx, activity.ListActivityOptions{
		ProjectID:    "p1",
		EntryID:      &entryID,
		ActivityType: &activityType,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "pc-1", *entries[0].EntryID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{ProjectID: "p2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].EntryID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
