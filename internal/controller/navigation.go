package controller

import "sync"

// NavigationStack is the session history of one window.
type NavigationStack struct {
	mu      sync.Mutex
	entries []string
	index   int
}

// NewNavigationStack starts a history with the given entries, positioned
// on the last one. An empty history starts at about:blank.
func NewNavigationStack(initial ...string) *NavigationStack {
	if len(initial) == 0 {
		initial = []string{"about:blank"}
	}
	entries := append([]string(nil), initial...)
	return &NavigationStack{entries: entries, index: len(entries) - 1}
}

// Navigate drops any forward entries and appends url.
func (n *NavigationStack) Navigate(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries[:n.index+1], url)
	n.index = len(n.entries) - 1
}

// GoBack moves one entry back. It reports false at the start of history.
func (n *NavigationStack) GoBack() bool {
	return n.GoToOffset(-1)
}

// GoForward moves one entry forward. It reports false at the end of history.
func (n *NavigationStack) GoForward() bool {
	return n.GoToOffset(1)
}

// GoToOffset moves by offset entries. Offsets leading outside the history
// are ignored.
func (n *NavigationStack) GoToOffset(offset int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	target := n.index + offset
	if offset == 0 || target < 0 || target >= len(n.entries) {
		return false
	}
	n.index = target
	return true
}

// Length is the number of entries.
func (n *NavigationStack) Length() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// Current returns the URL of the active entry.
func (n *NavigationStack) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entries[n.index]
}

// Index returns the position of the active entry.
func (n *NavigationStack) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}
