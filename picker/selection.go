package picker

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"clipick/library"
)

// DefaultMaxCount is how many photos can be picked unless configured.
const DefaultMaxCount = 9

var ErrLimitReached = errors.New("selection limit reached")

type EventKind int

const (
	EventSelectionChanged EventKind = iota
	EventOriginChanged
	EventEdited
)

// Event tells subscribers what changed. Selected and IsOrigin always carry
// the state after the change.
type Event struct {
	Kind     EventKind
	Selected []library.Asset
	IsOrigin bool
	// Asset is the edited asset for EventEdited.
	Asset library.Asset
}

// Selection is the picking state shared by every screen of the picker: the
// ordered selected photos, the original-size toggle and the edits made to
// photos. It is safe for concurrent use.
type Selection struct {
	mu       sync.Mutex
	max      int
	selected []library.Asset
	isOrigin bool
	edited   map[string]image.Image

	subs   map[int]func(Event)
	nextID int
}

func NewSelection(maxCount int) *Selection {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	return &Selection{
		max:    maxCount,
		edited: make(map[string]image.Image),
		subs:   make(map[int]func(Event)),
	}
}

func (s *Selection) MaxCount() int { return s.max }

// Subscribe registers fn for every change. Call the returned func to stop.
func (s *Selection) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Select appends a to the selection. Selecting a selected photo does
// nothing.
func (s *Selection) Select(a library.Asset) error {
	s.mu.Lock()
	if s.indexLocked(a.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	if len(s.selected) >= s.max {
		s.mu.Unlock()
		return fmt.Errorf("select %s: at most %d photos: %w", a.ID, s.max, ErrLimitReached)
	}
	s.selected = append(s.selected, a)
	ev := s.eventLocked(EventSelectionChanged)
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// Deselect removes the photo; the ones after it move up. It returns false
// when the photo was not selected.
func (s *Selection) Deselect(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
	ev := s.eventLocked(EventSelectionChanged)
	s.mu.Unlock()
	s.publish(ev)
	return true
}

// Toggle selects a when it is not selected and deselects it otherwise. It
// reports whether a ends up selected.
func (s *Selection) Toggle(a library.Asset) (bool, error) {
	if s.Deselect(a.ID) {
		return false, nil
	}
	if err := s.Select(a); err != nil {
		return false, err
	}
	return true, nil
}

// Index returns the position of the photo in the selection, -1 when it is
// not selected.
func (s *Selection) Index(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

func (s *Selection) IsSelected(id string) bool { return s.Index(id) >= 0 }

// CanSelect is false for unselected photos once the selection is full.
func (s *Selection) CanSelect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0 || len(s.selected) < s.max
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.selected)
}

// Assets returns the selected photos in selection order.
func (s *Selection) Assets() []library.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]library.Asset(nil), s.selected...)
}

func (s *Selection) IsOrigin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOrigin
}

func (s *Selection) SetOrigin(v bool) {
	s.mu.Lock()
	if s.isOrigin == v {
		s.mu.Unlock()
		return
	}
	s.isOrigin = v
	ev := s.eventLocked(EventOriginChanged)
	s.mu.Unlock()
	s.publish(ev)
}

// SetEdited stores the cropped image of a photo. It stands in for the
// photo's thumbnail and is what gets picked.
func (s *Selection) SetEdited(a library.Asset, img image.Image) {
	s.mu.Lock()
	s.edited[a.ID] = img
	ev := s.eventLocked(EventEdited)
	ev.Asset = a
	s.mu.Unlock()
	s.publish(ev)
}

func (s *Selection) Edited(id string) (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.edited[id]
	return img, ok
}

// Clear drops the selection and every edit, as when the user leaves the
// photo list. The original-size toggle is kept.
func (s *Selection) Clear() {
	s.mu.Lock()
	if len(s.selected) == 0 && len(s.edited) == 0 {
		s.mu.Unlock()
		return
	}
	s.selected = nil
	s.edited = make(map[string]image.Image)
	ev := s.eventLocked(EventSelectionChanged)
	s.mu.Unlock()
	s.publish(ev)
}

func (s *Selection) indexLocked(id string) int {
	for i, a := range s.selected {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *Selection) eventLocked(kind EventKind) Event {
	return Event{
		Kind:     kind,
		Selected: append([]library.Asset(nil), s.selected...),
		IsOrigin: s.isOrigin,
	}
}

func (s *Selection) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
