package events

import (
	"sync"
	"testing"
	"time"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventPlayerJoin)

	hub.EmitJoin("log", "Steve")

	select {
	case e := <-ch:
		if e.Type != EventPlayerJoin {
			t.Errorf("expected EventPlayerJoin, got %s", e.Type)
		}
		data, ok := e.Data.(PlayerData)
		if !ok {
			t.Fatal("expected PlayerData")
		}
		if data.Player != "Steve" {
			t.Errorf("expected player Steve, got %s", data.Player)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp should be filled in")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10)

	hub.EmitJoin("log", "a")
	hub.EmitChat("log", "a", "hi")
	hub.EmitServerCommand("rcon", "rcon", "whitelist list")

	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
		}
	}
	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventPlayerJoin, EventPlayerQuit)

	hub.EmitJoin("log", "a")
	hub.EmitChat("log", "a", "hello")
	hub.EmitPlayerCommand("log", "a", "/spawn")
	hub.EmitQuit("log", "a")

	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:
	if received != 2 {
		t.Errorf("expected 2 presence events, got %d", received)
	}
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub()
	_ = hub.Subscribe(1, EventChat)

	for i := 0; i < 10; i++ {
		hub.EmitChat("log", "a", "spam")
	}

	published, dropped := hub.Stats()
	if published != 10 {
		t.Errorf("expected 10 published, got %d", published)
	}
	if dropped != 9 {
		t.Errorf("expected 9 dropped, got %d", dropped)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventChat)
	hub.Unsubscribe(ch)

	hub.EmitChat("log", "a", "hi")
	select {
	case <-ch:
		t.Error("unsubscribed channel should not receive")
	default:
	}
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *Hub
	hub.EmitJoin("log", "Steve")
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1000, EventChat)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.EmitChat("test", "p", "m")
			}
		}()
	}
	wg.Wait()

	if got := len(ch); got != numPublishers*eventsPerPublisher {
		t.Errorf("expected %d buffered events, got %d", numPublishers*eventsPerPublisher, got)
	}
}
