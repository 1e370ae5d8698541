package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Push(event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestRegisterReplacesHandle(t *testing.T) {
	reg := NewRegistry()
	first, second := &recorder{}, &recorder{}

	assert.Nil(t, reg.Register("alice", first))
	prev := reg.Register("alice", second)
	assert.Same(t, first, prev)

	h, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, h)
	assert.Equal(t, 1, reg.Count())
}

func TestStaleUnregisterKeepsReplacement(t *testing.T) {
	reg := NewRegistry()
	first, second := &recorder{}, &recorder{}
	reg.Register("alice", first)
	reg.Register("alice", second)

	assert.False(t, reg.Unregister("alice", first))
	assert.True(t, reg.Online("alice"))
	assert.True(t, reg.Unregister("alice", second))
	assert.False(t, reg.Online("alice"))
	assert.False(t, reg.Unregister("alice", nil))
}

func TestRouteTracking(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.UpdateRoute("bob", "/chat")
	assert.False(t, ok)

	reg.Register("bob", &recorder{})
	prev, ok := reg.UpdateRoute("bob", "/chat")
	assert.True(t, ok)
	assert.Empty(t, prev)
	route, _ := reg.Route("bob")
	assert.Equal(t, "/chat", route)
}

func TestBroadcastSkipsSender(t *testing.T) {
	reg := NewRegistry()
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	reg.Register("a", a)
	reg.Register("b", b)
	reg.Register("c", c)

	n := reg.Broadcast("a", "presence", nil)
	assert.Equal(t, 2, n)
	assert.Empty(t, a.events)
	assert.Equal(t, []string{"presence"}, b.events)
	assert.Equal(t, []string{"presence"}, c.events)
}

func TestPushMissIsNotAnError(t *testing.T) {
	reg := NewRegistry()
	ok, err := reg.Push("ghost", "receive", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &recorder{}
			id := string(rune('a' + i%10))
			reg.Register(id, h)
			reg.UpdateRoute(id, "/home")
			reg.Broadcast(id, "presence", nil)
			reg.Unregister(id, h)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Count(), 10)
}
