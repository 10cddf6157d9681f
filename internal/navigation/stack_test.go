package navigation_test

import (
	"sync"
	"testing"

	"matchroom/backend/internal/navigation"

	"github.com/stretchr/testify/assert"
)

func keys(s *navigation.Stack) []string {
	var out []string
	for _, r := range s.Routes() {
		out = append(out, r.Key)
	}
	return out
}

func TestStack_PushPop(t *testing.T) {
	s := navigation.NewStack()
	assert.Equal(t, navigation.RouteHome, s.Top().Name)

	s.Push(navigation.Route{Name: "settings", Key: "settings"})
	assert.Equal(t, "settings", s.Top().Key)

	r, ok := s.Pop()
	assert.True(t, ok)
	assert.Equal(t, "settings", r.Key)

	_, ok = s.Pop()
	assert.False(t, ok, "root must stay")
	assert.Len(t, s.Routes(), 1)
}

func TestStack_OpenChatReusesExistingRoute(t *testing.T) {
	s := navigation.NewStack()

	assert.True(t, s.OpenChat("a_TO_b", "Chess"))
	s.Push(navigation.Route{Name: "profile", Key: "profile:b"})

	assert.False(t, s.OpenChat("a_TO_b", "Chess"))
	assert.Equal(t, []string{"home", "a_TO_b"}, keys(s))

	assert.True(t, s.OpenChat("c_TO_a", "Hiking"))
	assert.Equal(t, []string{"home", "a_TO_b", "c_TO_a"}, keys(s))
}

func TestStack_PopIfTopIsIdempotent(t *testing.T) {
	s := navigation.NewStack()
	s.OpenChat("a_TO_b", "")

	assert.True(t, s.PopIfTop("a_TO_b"))
	assert.False(t, s.PopIfTop("a_TO_b"))
	assert.Equal(t, []string{"home"}, keys(s))
}

func TestStack_PopIfTopLeavesOtherScreens(t *testing.T) {
	s := navigation.NewStack()
	s.OpenChat("a_TO_b", "")
	s.Push(navigation.Route{Name: "profile", Key: "profile:b"})

	assert.False(t, s.PopIfTop("a_TO_b"))
	assert.Len(t, s.Routes(), 3)
}

func TestStack_ConcurrentPopIfTop(t *testing.T) {
	s := navigation.NewStack()
	s.OpenChat("a_TO_b", "")

	var wg sync.WaitGroup
	popped := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			popped <- s.PopIfTop("a_TO_b")
		}()
	}
	wg.Wait()
	close(popped)

	count := 0
	for p := range popped {
		if p {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"home"}, keys(s))
}
