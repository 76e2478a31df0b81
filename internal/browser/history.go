package browser

// backStack is the surface's back/forward list. It is not the visit
// history: it only tracks where Back and Forward lead.
type backStack struct {
	entries []string
	pos     int
}

func newBackStack() *backStack {
	return &backStack{pos: -1}
}

// push adds url after the current position, dropping any forward entries.
// Pushing the current URL again (a reload) is a no-op.
func (h *backStack) push(url string) {
	if h.pos >= 0 && h.entries[h.pos] == url {
		return
	}
	h.entries = append(h.entries[:h.pos+1], url)
	h.pos = len(h.entries) - 1
}

func (h *backStack) back() (string, bool) {
	if h.pos <= 0 {
		return "", false
	}
	h.pos--
	return h.entries[h.pos], true
}

func (h *backStack) forward() (string, bool) {
	if h.pos >= len(h.entries)-1 {
		return "", false
	}
	h.pos++
	return h.entries[h.pos], true
}

func (h *backStack) current() string {
	if h.pos < 0 {
		return ""
	}
	return h.entries[h.pos]
}

func (h *backStack) canGoBack() bool    { return h.pos > 0 }
func (h *backStack) canGoForward() bool { return h.pos < len(h.entries)-1 }
