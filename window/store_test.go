package window

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(id string, z int) Record {
	return Record{
		ID:       id,
		Title:    id,
		ZIndex:   z,
		Position: Position{X: 10, Y: 20},
		Size:     Size{Width: 400, Height: 300},
	}
}

func TestFocusScenario(t *testing.T) {
	s := NewStore()

	require.True(t, s.RegisterWindow(Record{ID: "x", IsOpen: false, ZIndex: 1}))
	require.True(t, s.SetOpen("x", true))
	require.True(t, s.Focus("x"))

	rec, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, s.HighestZ(), rec.ZIndex)

	open := s.OpenWindows()
	count := 0
	for _, w := range open {
		if w.ID == "x" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestFocusIsStrictlyIncreasing(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, s.RegisterWindow(newTestRecord(id, 0)))
		require.True(t, s.SetOpen(id, true))
	}

	sequence := []string{"a", "b", "a", "c", "c", "b", "a"}
	last := 0
	for _, id := range sequence {
		require.True(t, s.Focus(id))
		rec, _ := s.Get(id)
		assert.Greater(t, rec.ZIndex, last, "focus %s", id)
		last = rec.ZIndex

		// Exactly one open window holds the maximum z index.
		holders := 0
		for _, w := range s.OpenWindows() {
			if w.ZIndex == s.HighestZ() {
				holders++
			}
		}
		assert.Equal(t, 1, holders)

		focused, ok := s.Focused()
		require.True(t, ok)
		assert.Equal(t, id, focused.ID)
	}
}

func TestRegisterRaisesHighestZ(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 7))
	s.RegisterWindow(newTestRecord("b", 3))

	assert.Equal(t, 7, s.HighestZ())

	s.Focus("b")
	rec, _ := s.Get("b")
	assert.Equal(t, 8, rec.ZIndex)
}

func TestRegisterNeverSharesZIndex(t *testing.T) {
	s := NewStore()
	a := newTestRecord("a", 1)
	a.IsOpen = true
	b := newTestRecord("b", 1)
	b.IsOpen = true
	require.True(t, s.RegisterWindow(a))
	require.True(t, s.RegisterWindow(b))

	ra, _ := s.Get("a")
	rb, _ := s.Get("b")
	assert.Equal(t, 1, ra.ZIndex)
	assert.NotEqual(t, ra.ZIndex, rb.ZIndex)
	assert.Equal(t, rb.ZIndex, s.HighestZ())

	// Asking for the focused window's z puts b above it instead.
	require.True(t, s.Focus("a"))
	ra, _ = s.Get("a")
	b.ZIndex = ra.ZIndex
	require.True(t, s.RegisterWindow(b, FieldZIndex))

	holders := 0
	for _, w := range s.OpenWindows() {
		if w.ZIndex == s.HighestZ() {
			holders++
		}
	}
	assert.Equal(t, 1, holders)
	focused, ok := s.Focused()
	require.True(t, ok)
	assert.Equal(t, "b", focused.ID)

	// Keeping its own z is not a conflict.
	rb, _ = s.Get("b")
	b.ZIndex = rb.ZIndex
	require.True(t, s.RegisterWindow(b, FieldZIndex))
	again, _ := s.Get("b")
	assert.Equal(t, rb.ZIndex, again.ZIndex)
}

func TestMaximizeRoundTrip(t *testing.T) {
	s := NewStore(WithViewport(Size{Width: 1920, Height: 1080}))
	orig := newTestRecord("w", 0)
	s.RegisterWindow(orig)
	s.Focus("w")
	before, _ := s.Get("w")

	require.True(t, s.Maximize("w"))
	maxed, _ := s.Get("w")
	assert.True(t, maxed.IsMaximized)
	assert.Equal(t, Position{}, maxed.Position)
	assert.Equal(t, Size{Width: 1920, Height: 1080}, maxed.Size)
	require.NotNil(t, maxed.PreviousPosition)
	assert.Equal(t, orig.Position, *maxed.PreviousPosition)
	assert.Equal(t, before.ZIndex, maxed.ZIndex, "maximize must not change z order")

	require.True(t, s.Maximize("w"))
	restored, _ := s.Get("w")
	assert.False(t, restored.IsMaximized)
	assert.Equal(t, orig.Position, restored.Position)
	assert.Equal(t, orig.Size, restored.Size)
	assert.Nil(t, restored.PreviousPosition)
	assert.Nil(t, restored.PreviousSize)
	assert.Equal(t, before.ZIndex, restored.ZIndex)
}

func TestReRegisterMerges(t *testing.T) {
	tests := []struct {
		name      string
		overrides []Field
		wantPos   Position
		wantSize  Size
		wantOpen  bool
	}{
		{
			name:     "no overrides keeps layout",
			wantPos:  Position{X: 100, Y: 100},
			wantSize: Size{Width: 500, Height: 500},
			wantOpen: true,
		},
		{
			name:      "position override",
			overrides: []Field{FieldPosition},
			wantPos:   Position{X: 1, Y: 2},
			wantSize:  Size{Width: 500, Height: 500},
			wantOpen:  true,
		},
		{
			name:      "size and visibility override",
			overrides: []Field{FieldSize, FieldVisibility},
			wantPos:   Position{X: 100, Y: 100},
			wantSize:  Size{Width: 3, Height: 4},
			wantOpen:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.RegisterWindow(newTestRecord("n", 0))
			s.Move("n", Position{X: 100, Y: 100})
			s.Resize("n", Size{Width: 500, Height: 500})
			s.SetOpen("n", true)
			s.Focus("n")
			focused, _ := s.Get("n")

			again := Record{
				ID:       "n",
				Title:    "Renamed",
				Position: Position{X: 1, Y: 2},
				Size:     Size{Width: 3, Height: 4},
			}
			require.True(t, s.RegisterWindow(again, tt.overrides...))

			rec, _ := s.Get("n")
			assert.Equal(t, "Renamed", rec.Title)
			assert.Equal(t, tt.wantPos, rec.Position)
			assert.Equal(t, tt.wantSize, rec.Size)
			assert.Equal(t, tt.wantOpen, rec.IsOpen)
			assert.Equal(t, focused.ZIndex, rec.ZIndex)
			assert.Equal(t, 1, s.Snapshot().Len())
		})
	}
}

func TestUpdateWindowKeepsZIndex(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 0))
	s.RegisterWindow(newTestRecord("b", 0))
	s.Focus("a")
	s.Focus("b")

	title := "refreshed"
	open := true
	require.True(t, s.UpdateWindow("a", Patch{Title: &title, IsOpen: &open, Content: "<div/>"}))

	a, _ := s.Get("a")
	assert.Equal(t, "refreshed", a.Title)
	assert.Equal(t, "<div/>", a.Content)
	assert.Equal(t, 1, a.ZIndex)
	assert.Equal(t, 2, s.HighestZ())
}

func TestUpdateWindowsIsOneTransition(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 0))
	s.RegisterWindow(newTestRecord("b", 0))

	var notified atomic.Int32
	cancel := s.Watch(func(Snapshot) { notified.Add(1) })
	defer cancel()

	before := s.Snapshot().Version()
	pos := Position{X: 5, Y: 5}
	changed := s.UpdateWindows(map[string]Patch{
		"a":       {Position: &pos},
		"b":       {Position: &pos},
		"missing": {Position: &pos},
	})

	require.True(t, changed)
	assert.Equal(t, before+1, s.Snapshot().Version())
	assert.Equal(t, int32(1), notified.Load())
	for _, id := range []string{"a", "b"} {
		rec, _ := s.Get(id)
		assert.Equal(t, pos, rec.Position)
	}
}

func TestUnknownWindowIsNoop(t *testing.T) {
	s := NewStore()
	before := s.Snapshot().Version()

	assert.False(t, s.SetOpen("ghost", true))
	assert.False(t, s.Focus("ghost"))
	assert.False(t, s.Maximize("ghost"))
	assert.False(t, s.Minimize("ghost", true))
	assert.False(t, s.Move("ghost", Position{}))
	assert.False(t, s.Resize("ghost", Size{}))
	assert.False(t, s.Close("ghost"))
	assert.False(t, s.UpdateWindow("ghost", Patch{}))
	assert.False(t, s.Unregister("ghost"))

	assert.Equal(t, before, s.Snapshot().Version())
	assert.Equal(t, 0, s.HighestZ())
}

func TestCloseKeepsRecord(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 0))
	s.SetOpen("a", true)
	s.Move("a", Position{X: 42, Y: 43})

	require.True(t, s.Close("a"))

	rec, ok := s.Get("a")
	require.True(t, ok)
	assert.False(t, rec.IsOpen)
	assert.Equal(t, Position{X: 42, Y: 43}, rec.Position)
	assert.Empty(t, s.OpenWindows())
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 0))
	old := s.Snapshot()

	s.Move("a", Position{X: 99, Y: 99})

	rec, _ := old.Get("a")
	assert.Equal(t, Position{X: 10, Y: 20}, rec.Position)
}

func TestSetOpenClearsMinimized(t *testing.T) {
	s := NewStore()
	s.RegisterWindow(newTestRecord("a", 0))
	s.Minimize("a", true)

	s.SetOpen("a", true)

	rec, _ := s.Get("a")
	assert.True(t, rec.IsOpen)
	assert.False(t, rec.IsMinimized)
	assert.Equal(t, 0, rec.ZIndex)
}

func TestWatchCancel(t *testing.T) {
	s := NewStore()
	calls := 0
	cancel := s.Watch(func(Snapshot) { calls++ })

	s.RegisterWindow(newTestRecord("a", 0))
	cancel()
	s.Focus("a")

	assert.Equal(t, 1, calls)
}

func TestRemoteID(t *testing.T) {
	assert.Equal(t, "remote1.notepad", RemoteID("remote1", "notepad"))
}
