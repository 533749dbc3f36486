package guard

import "sync"

// Entry is one history entry.
type Entry struct {
	Location string
	// From is the location that redirected here when the redirect carried state.
	From string
}

// History is an in-memory Navigator with push/replace semantics.
type History struct {
	mu      sync.Mutex
	entries []Entry
	count   int
	seq     uint64
}

var _ Navigator = (*History)(nil)

// NewHistory starts a history at location.
func NewHistory(location string) *History {
	return &History{entries: []Entry{{Location: location}}}
}

// Location returns the current location.
func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1].Location
}

// Current returns the current entry.
func (h *History) Current() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Push navigates to location as a new attempt.
func (h *History) Push(location string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.entries = append(h.entries, Entry{Location: location})
}

// Redirect implements Navigator.
func (h *History) Redirect(path string, opts RedirectOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.seq++
	e := Entry{Location: path}
	if opts.CarryState {
		e.From = h.entries[len(h.entries)-1].Location
	}
	if opts.Replace {
		h.entries[len(h.entries)-1] = e
		return nil
	}
	h.entries = append(h.entries, e)
	return nil
}

// Attempt implements Navigator.
func (h *History) Attempt() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Redirects counts Redirect calls.
func (h *History) Redirects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
