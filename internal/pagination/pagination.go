// Package pagination accumulates pages of a cursor-paginated collection into
// one ordered, append-only sequence.
//
// A State belongs to a single pagination session. Items only ever grow within
// a session: Apply appends in page order, nothing is removed or reordered.
// Reset starts a new session.
//
// The continuation cursor is opaque. It is stored as the server sent it and
// handed back verbatim for the next request; the client never inspects or
// constructs one.
package pagination

// Cursor is an opaque, server-issued continuation token.
type Cursor string

// Page is one page of a cursor-paginated collection.
type Page[T any] struct {
	Items   []T
	Cursor  *Cursor
	HasMore bool
}

// Position says where the next fetch starts.
type Position int

const (
	// Start means no page has been applied; fetch without a cursor.
	Start Position = iota
	// Continue means fetch with the returned cursor.
	Continue
	// End means there is no further page to fetch.
	End
)

func (p Position) String() string {
	switch p {
	case Start:
		return "start"
	case Continue:
		return "continue"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// State holds the accumulated items and the last applied page.
type State[T any] struct {
	items []T
	last  *Page[T]

	key  func(T) string
	seen map[string]struct{}
}

// Option configures a State.
type Option[T any] func(*State[T])

// WithKey enables deduplication: an item whose key was already accumulated in
// the current session is dropped on Apply. Without it, duplicates sent by the
// server are kept.
func WithKey[T any](key func(T) string) Option[T] {
	return func(s *State[T]) { s.key = key }
}

// NewState returns an empty state: no items and no last page.
func NewState[T any](opts ...Option[T]) *State[T] {
	s := &State[T]{}
	for _, o := range opts {
		o(s)
	}
	if s.key != nil {
		s.seen = make(map[string]struct{})
	}
	return s
}

// Apply appends page.Items in order and makes page the last page. It returns
// the items that were actually appended.
func (s *State[T]) Apply(page Page[T]) []T {
	start := len(s.items)
	for _, it := range page.Items {
		if s.key != nil {
			k := s.key(it)
			if _, dup := s.seen[k]; dup {
				continue
			}
			s.seen[k] = struct{}{}
		}
		s.items = append(s.items, it)
	}
	p := page
	p.Items = append([]T(nil), page.Items...)
	if page.Cursor != nil {
		c := *page.Cursor
		p.Cursor = &c
	}
	s.last = &p
	return s.items[start:len(s.items):len(s.items)]
}

// NextCursor returns the cursor for the next fetch and the position it
// belongs to. The cursor is nil unless the position is Continue.
//
// A page that reports more results without a cursor cannot be continued, so
// it yields End although IsExhausted stays false.
func (s *State[T]) NextCursor() (*Cursor, Position) {
	if s.last == nil {
		return nil, Start
	}
	if !s.last.HasMore || s.last.Cursor == nil {
		return nil, End
	}
	c := *s.last.Cursor
	return &c, Continue
}

// IsExhausted reports whether a page was applied and it was the final one.
func (s *State[T]) IsExhausted() bool {
	return s.last != nil && !s.last.HasMore
}

// Loaded reports whether at least one page was applied in this session.
func (s *State[T]) Loaded() bool { return s.last != nil }

// LastPage returns the most recently applied page.
func (s *State[T]) LastPage() (Page[T], bool) {
	if s.last == nil {
		return Page[T]{}, false
	}
	return *s.last, true
}

// Items returns a copy of the accumulated items.
func (s *State[T]) Items() []T {
	return append([]T(nil), s.items...)
}

// Len returns the number of accumulated items.
func (s *State[T]) Len() int { return len(s.items) }

// Reset discards the session.
func (s *State[T]) Reset() {
	s.items = nil
	s.last = nil
	if s.key != nil {
		s.seen = make(map[string]struct{})
	}
}
