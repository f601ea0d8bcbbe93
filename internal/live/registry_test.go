package live

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	conn := &websocket.Conn{}

	reg.Register("sess_1", conn)

	if active := reg.Get("sess_1"); active != conn {
		t.Errorf("Expected connection %v, got %v", conn, active)
	}
	if reg.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", reg.Count())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	conn := &websocket.Conn{}

	reg.Register("sess_1", conn)
	reg.Unregister("sess_1", conn)

	if active := reg.Get("sess_1"); active != nil {
		t.Errorf("Expected nil connection, got %v", active)
	}
}

func TestRegistry_UnregisterStale(t *testing.T) {
	reg := NewRegistry()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	reg.Register("sess_1", conn1)
	reg.Register("sess_2", conn2)

	// A stale unregister must not remove a different connection.
	reg.Unregister("sess_2", conn1)

	if active := reg.Get("sess_2"); active != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, active)
	}
	if reg.Count() != 2 {
		t.Errorf("Expected 2 sessions, got %d", reg.Count())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			reg.Register("sess_"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			reg.Get("sess_" + strconv.Itoa(i))
		}
	}()
	wg.Wait()

	if reg.Count() != 1000 {
		t.Errorf("Expected 1000 sessions, got %d", reg.Count())
	}
}
