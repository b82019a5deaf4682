package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskos/window"
)

func newTestStorage(t *testing.T) *LayoutStorage {
	t.Helper()
	ls, err := NewLayoutStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ls.Close() })
	return ls
}

func TestLayoutSaveLoad(t *testing.T) {
	ls := newTestStorage(t)

	rec := window.Record{
		ID:       "notepad",
		Position: window.Position{X: 40, Y: 60},
		Size:     window.Size{Width: 600, Height: 400},
	}
	require.NoError(t, ls.SaveLayout(rec))

	got, err := ls.LoadLayout("notepad")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Position, got.Position)
	assert.Equal(t, rec.Size, got.Size)
	assert.False(t, got.IsMaximized)
	assert.False(t, got.UpdatedAt.IsZero())

	// Saving again replaces the row.
	rec.Position = window.Position{X: 1, Y: 2}
	require.NoError(t, ls.SaveLayout(rec))
	got, err = ls.LoadLayout("notepad")
	require.NoError(t, err)
	assert.Equal(t, window.Position{X: 1, Y: 2}, got.Position)
}

func TestLayoutMaximizedKeepsRestoreGeometry(t *testing.T) {
	ls := newTestStorage(t)

	prevPos := window.Position{X: 10, Y: 20}
	prevSize := window.Size{Width: 300, Height: 200}
	require.NoError(t, ls.SaveLayout(window.Record{
		ID:               "calc",
		IsMaximized:      true,
		Position:         window.Position{},
		Size:             window.DefaultViewport,
		PreviousPosition: &prevPos,
		PreviousSize:     &prevSize,
	}))

	got, err := ls.LoadLayout("calc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsMaximized)
	assert.Equal(t, prevPos, got.Position)
	assert.Equal(t, prevSize, got.Size)
}

func TestLayoutMissing(t *testing.T) {
	ls := newTestStorage(t)

	got, err := ls.LoadLayout("nope")
	assert.NoError(t, err)
	assert.Nil(t, got)

	session, err := ls.LoadSession("nope")
	assert.NoError(t, err)
	assert.Nil(t, session)
}

func TestListAndDeleteLayouts(t *testing.T) {
	ls := newTestStorage(t)
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, ls.SaveLayout(window.Record{ID: id, Size: window.Size{Width: 1, Height: 1}}))
	}
	require.NoError(t, ls.DeleteLayout("b"))

	layouts, err := ls.ListLayouts()
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, "a", layouts[0].WindowID)
	assert.Equal(t, "c", layouts[1].WindowID)
}

func TestSessions(t *testing.T) {
	ls := newTestStorage(t)

	require.NoError(t, ls.SaveSession(PluginSession{
		PluginID: "notepad",
		WasOpen:  true,
		State:    map[string]any{"value": "draft"},
	}))
	require.NoError(t, ls.SaveSession(PluginSession{PluginID: "calc"}))

	got, err := ls.LoadSession("notepad")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.WasOpen)
	assert.Equal(t, "draft", got.State["value"])

	calc, err := ls.LoadSession("calc")
	require.NoError(t, err)
	assert.False(t, calc.WasOpen)
	assert.Empty(t, calc.State)

	open, err := ls.OpenPlugins()
	require.NoError(t, err)
	assert.Equal(t, []string{"notepad"}, open)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	ls, err := NewLayoutStorage(dir)
	require.NoError(t, err)
	require.NoError(t, ls.SaveLayout(window.Record{ID: "notepad", Size: window.Size{Width: 5, Height: 6}}))
	require.NoError(t, ls.Close())

	// The migration must be a no-op on an already migrated database.
	ls, err = NewLayoutStorage(dir)
	require.NoError(t, err)
	defer ls.Close()

	got, err := ls.LoadLayout("notepad")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, window.Size{Width: 5, Height: 6}, got.Size)
}
