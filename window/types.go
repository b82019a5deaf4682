package window

import "sort"

// Position is the top-left corner of a window in desktop pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a window's outer dimensions in desktop pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Record is the on-screen state tracked for one window. Window ids are
// plugin ids; windows backed by a remote component use "remoteID.componentID".
type Record struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Content          any       `json:"-"` // opaque UI handle, never inspected
	IsOpen           bool      `json:"isOpen"`
	IsMinimized      bool      `json:"isMinimized"`
	IsMaximized      bool      `json:"isMaximized"`
	ZIndex           int       `json:"zIndex"`
	Position         Position  `json:"position"`
	Size             Size      `json:"size"`
	PreviousPosition *Position `json:"previousPosition,omitempty"`
	PreviousSize     *Size     `json:"previousSize,omitempty"`
}

// Patch is a partial update applied by UpdateWindow. Nil fields are left
// alone. There is deliberately no z-index field: content refreshes must not
// change focus order.
type Patch struct {
	Title       *string
	Content     any
	IsOpen      *bool
	IsMinimized *bool
	Position    *Position
	Size        *Size
}

// Field selects record fields that RegisterWindow may overwrite on an
// already registered window.
type Field uint8

const (
	FieldPosition Field = 1 << iota
	FieldSize
	FieldZIndex
	FieldVisibility // IsOpen, IsMinimized, IsMaximized
)

// Snapshot is an immutable view of the store. Every mutation produces a new
// snapshot; callers may keep old ones.
type Snapshot struct {
	windows  map[string]Record
	highestZ int
	version  uint64
}

// Get returns the record for id.
func (s Snapshot) Get(id string) (Record, bool) {
	rec, ok := s.windows[id]
	return rec, ok
}

// HighestZ returns the largest z index handed out so far.
func (s Snapshot) HighestZ() int { return s.highestZ }

// Version increases by one for every state transition.
func (s Snapshot) Version() uint64 { return s.version }

// Len returns the number of registered windows, open or not.
func (s Snapshot) Len() int { return len(s.windows) }

// All returns every record sorted by id.
func (s Snapshot) All() []Record {
	out := make([]Record, 0, len(s.windows))
	for _, rec := range s.windows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Open returns the open records ordered back to front by z index.
func (s Snapshot) Open() []Record {
	out := make([]Record, 0, len(s.windows))
	for _, rec := range s.windows {
		if rec.IsOpen {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Focused returns the open window holding the highest z index.
func (s Snapshot) Focused() (Record, bool) {
	open := s.Open()
	if len(open) == 0 {
		return Record{}, false
	}
	return open[len(open)-1], true
}
