package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/model"
)

func TestFeeds_ActivityPrependOrderAndCap(t *testing.T) {
	f := NewFeeds(3, 0, zerolog.Nop())
	for i := 0; i < 5; i++ {
		f.AddActivity(model.ActivityEvent{ID: fmt.Sprintf("a-%d", i)})
	}

	got := f.Activity()
	require.Len(t, got, 3)
	assert.Equal(t, "a-4", got[0].ID)
	assert.Equal(t, "a-3", got[1].ID)
	assert.Equal(t, "a-2", got[2].ID)
}

func TestFeeds_NotificationCap(t *testing.T) {
	f := NewFeeds(2, 0, zerolog.Nop())
	f.Notify(model.NoticeInfo, "one")
	f.Notify(model.NoticeInfo, "two")
	f.Notify(model.NoticeError, "three")

	got := f.Notifications()
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Message)
	assert.Equal(t, "two", got[1].Message)
}

func TestFeeds_CurrentToastAutoDismiss(t *testing.T) {
	f := NewFeeds(10, 20*time.Millisecond, zerolog.Nop())
	defer f.Stop()

	f.Notify(model.NoticeWarning, "heads up")
	cur, ok := f.Current()
	require.True(t, ok)
	assert.Equal(t, "heads up", cur.Message)

	require.Eventually(t, func() bool {
		_, ok := f.Current()
		return !ok
	}, time.Second, time.Millisecond)

	// The log keeps the entry even after the toast is gone.
	assert.Len(t, f.Notifications(), 1)
}

func TestFeeds_NewerToastOutlivesOlderTimer(t *testing.T) {
	f := NewFeeds(10, 30*time.Millisecond, zerolog.Nop())
	defer f.Stop()

	f.Notify(model.NoticeInfo, "first")
	time.Sleep(15 * time.Millisecond)
	f.Notify(model.NoticeInfo, "second")

	// The first toast's deadline passes; the second must still be current.
	time.Sleep(20 * time.Millisecond)
	cur, ok := f.Current()
	require.True(t, ok)
	assert.Equal(t, "second", cur.Message)
}

func TestFeeds_ManualDismiss(t *testing.T) {
	f := NewFeeds(10, time.Minute, zerolog.Nop())
	defer f.Stop()

	f.Notify(model.NoticeInfo, "bye")
	f.Dismiss()
	_, ok := f.Current()
	assert.False(t, ok)
}

func TestFeeds_PresenceWholesaleReplace(t *testing.T) {
	f := NewFeeds(10, 0, zerolog.Nop())

	f.ReplacePresence([]model.PresenceUser{
		{UserID: "u1", Status: model.PresenceOnline},
		{UserID: "u2", Status: model.PresenceIdle},
	})
	require.Len(t, f.Presence(), 2)

	// An empty snapshot empties the view; absence means departed.
	f.ReplacePresence([]model.PresenceUser{})
	got := f.Presence()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
