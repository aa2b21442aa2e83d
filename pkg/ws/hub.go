package ws

import (
	"sync"
)

// hub tracks which sockets are currently joined to which session. Sessions
// themselves are persisted; this membership map is purely in-process and
// exists so typing indicators and turn results reach every member socket.
type hub struct {
	mu      sync.RWMutex
	members map[string]map[*socket]struct{} // sessionID → joined sockets
}

func newHub() *hub {
	return &hub{members: make(map[string]map[*socket]struct{})}
}

// join moves the socket into the session, leaving any previous one. A socket
// is a member of at most one session at a time.
func (h *hub) join(s *socket, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(s)
	if h.members[sessionID] == nil {
		h.members[sessionID] = make(map[*socket]struct{})
	}
	h.members[sessionID][s] = struct{}{}
	s.sessionID = sessionID
}

// leave removes the socket from its session, if any.
func (h *hub) leave(s *socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s)
}

func (h *hub) leaveLocked(s *socket) {
	if s.sessionID == "" {
		return
	}
	if set, ok := h.members[s.sessionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.members, s.sessionID)
		}
	}
	s.sessionID = ""
}

// drop removes every socket from the session, used when the session is
// deleted while members are still connected.
func (h *hub) drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.members[sessionID] {
		s.sessionID = ""
	}
	delete(h.members, sessionID)
}

// current returns the socket's session membership under the hub lock.
func (h *hub) current(s *socket) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return s.sessionID
}

// broadcast sends the event to every member of the session except the
// excluded socket. Pass exclude=nil to reach everyone.
func (h *hub) broadcast(sessionID, event string, payload any, exclude *socket) {
	h.mu.RLock()
	sockets := make([]*socket, 0, len(h.members[sessionID]))
	for s := range h.members[sessionID] {
		if s != exclude {
			sockets = append(sockets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sockets {
		s.send(event, payload)
	}
}
