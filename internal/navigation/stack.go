// Package navigation tracks each viewer's screen stack so chat screens are
// never opened twice for the same room.
package navigation

import "sync"

const (
	RouteHome = "home"
	RouteChat = "chat"
)

// Route is one screen on the stack. Key identifies it, e.g. the room id for a
// chat screen.
type Route struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Title string `json:"title,omitempty"`
}

// Stack is safe for concurrent use. The bottom route is never popped.
type Stack struct {
	mu     sync.Mutex
	routes []Route
}

func NewStack() *Stack {
	return &Stack{routes: []Route{{Name: RouteHome, Key: RouteHome}}}
}

func (s *Stack) Push(r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, r)
}

// Pop removes the top route. It reports false when only the root is left.
func (s *Stack) Pop() (Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.routes) <= 1 {
		return Route{}, false
	}
	top := s.routes[len(s.routes)-1]
	s.routes = s.routes[:len(s.routes)-1]
	return top, true
}

func (s *Stack) Top() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routes[len(s.routes)-1]
}

func (s *Stack) Routes() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Route(nil), s.routes...)
}

// OpenChat shows the chat screen for roomID. If it is already on the stack the
// stack is unwound back to it; otherwise a new route is pushed. It reports
// whether a route was pushed.
func (s *Stack) OpenChat(roomID, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.routes) - 1; i >= 0; i-- {
		r := s.routes[i]
		if r.Name == RouteChat && r.Key == roomID {
			s.routes = s.routes[:i+1]
			return false
		}
	}
	s.routes = append(s.routes, Route{Name: RouteChat, Key: roomID, Title: title})
	return true
}

// PopIfTop pops the top route only when its key matches. Calling it again
// after the route is gone does nothing.
func (s *Stack) PopIfTop(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.routes) <= 1 || s.routes[len(s.routes)-1].Key != key {
		return false
	}
	s.routes = s.routes[:len(s.routes)-1]
	return true
}
