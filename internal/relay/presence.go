package relay

import "sort"

// IsOnline reports whether any registered connection belongs to username.
func (h *Hub) IsOnline(username string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onlineLocked(username)
}

// ListOnline returns every username with at least one live connection,
// sorted and without duplicates.
func (h *Hub) ListOnline() []string {
	h.mu.Lock()
	seen := make(map[string]struct{}, len(h.conns))
	for c := range h.conns {
		seen[c.username] = struct{}{}
	}
	h.mu.Unlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Hub) onlineLocked(username string) bool {
	for c := range h.conns {
		if c.username == username {
			return true
		}
	}
	return false
}
