package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Register("ravi_k")
	defer hub.Unregister(client)

	payload := []byte("hello")
	hub.Broadcast("ravi_k", payload)

	select {
	case msg := <-client.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("ravi_k")
	if ch == "" {
		t.Fatalf("expected channel")
	}
	if riderIDFromChannel(ch) != "ravi_k" {
		t.Fatalf("unexpected rider id")
	}
	if riderIDFromChannel("bad") != "" {
		t.Fatalf("expected empty rider id")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := hub.Register("asha_m")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
}

func TestWatchers(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	if hub.Watchers("ravi_k") != 0 {
		t.Fatalf("expected no watchers")
	}
	a := hub.Register("ravi_k")
	b := hub.Register("ravi_k")
	if hub.Watchers("ravi_k") != 2 {
		t.Fatalf("expected two watchers, got %d", hub.Watchers("ravi_k"))
	}
	hub.Unregister(a)
	hub.Unregister(b)
	if hub.Watchers("ravi_k") != 0 {
		t.Fatalf("expected watchers to drop back to zero")
	}
}

func TestHubBroadcastDuringChurn(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					hub.Broadcast("ravi_k", []byte("frame"))
				}
			}
		}()
	}

	// viewers connect and drop while frames are in flight
	for i := 0; i < 500; i++ {
		client := hub.Register("ravi_k")
		hub.Unregister(client)
	}

	close(done)
	wg.Wait()

	if hub.Watchers("ravi_k") != 0 {
		t.Fatalf("expected no watchers left, got %d", hub.Watchers("ravi_k"))
	}
}

func TestHubRedisBroadcastAndSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client, zerolog.Nop())
	ws := hub.Register("ravi_k")
	defer hub.Unregister(ws)

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast("ravi_k", []byte("ping"))

	select {
	case msg := <-ws.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}

	// a second hub on the same redis sees the frame too
	other := NewHub(redis.NewClient(&redis.Options{Addr: s.Addr()}), zerolog.Nop())
	watcher := other.Register("ravi_k")
	defer other.Unregister(watcher)

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast("ravi_k", []byte("pong"))

	select {
	case msg := <-watcher.Send:
		if string(msg) != "pong" {
			t.Fatalf("unexpected message from redis")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for redis fanout")
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client, zerolog.Nop())
	clientNode := hub.Register("ravi_k")
	defer hub.Unregister(clientNode)

	// publish fails, frame still reaches local clients
	hub.Broadcast("ravi_k", []byte("ping"))
	select {
	case msg := <-clientNode.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for local fallback")
	}
}
