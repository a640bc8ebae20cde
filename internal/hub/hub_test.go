package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	h := New(zerolog.Nop())

	if h.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if h.subscribers == nil {
		t.Error("Hub subscribers map is nil")
	}
	if h.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
}

func TestPublish_DoesNotBlockWithNoSubscribers(t *testing.T) {
	h := New(zerolog.Nop())
	go h.Run()

	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		h.Publish(Event{Type: "resolved", Topic: BetTopic("bet-1")})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestPublish_BufferFull_DropsRatherThanBlocks(t *testing.T) {
	h := New(zerolog.Nop())
	// Hub not running: the broadcast channel fills up and stays full.
	for i := 0; i < cap(h.broadcast); i++ {
		h.Publish(Event{Type: "washed", Topic: BetTopic("bet-1")})
	}

	done := make(chan struct{})
	go func() {
		h.Publish(Event{Type: "overflow", Topic: BetTopic("bet-1")})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked when broadcast buffer was full")
	}
}

func TestBetTopicAndTableTopic(t *testing.T) {
	if got := BetTopic("b1"); got != "bet:b1" {
		t.Errorf("BetTopic() = %q, want %q", got, "bet:b1")
	}
	if got := TableTopic("t1"); got != "table:t1" {
		t.Errorf("TableTopic() = %q, want %q", got, "table:t1")
	}
}

func TestPublish_ConcurrentIsRaceFree(t *testing.T) {
	h := New(zerolog.Nop())
	go h.Run()
	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.Publish(Event{Type: "resolved", Topic: BetTopic("bet-1"), Data: n})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent publishes timed out")
	}
}
