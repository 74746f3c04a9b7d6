package stream

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Hub fans live summary payloads out to websocket clients keyed by rider.
// With a redis client attached, payloads also cross process boundaries so
// any api instance can serve any viewer.
type Hub struct {
	redis   *redis.Client
	log     zerolog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	RiderID string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client, log zerolog.Logger) *Hub {
	h := &Hub{
		redis:   redisClient,
		log:     log,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(riderID string) *Client {
	client := &Client{
		RiderID: riderID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[riderID] == nil {
		h.clients[riderID] = map[*Client]struct{}{}
	}
	h.clients[riderID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if riderClients, ok := h.clients[client.RiderID]; ok {
		delete(riderClients, client)
		if len(riderClients) == 0 {
			delete(h.clients, client.RiderID)
		}
	}
	close(client.Send)
}

// Watchers reports how many clients follow a rider right now.
func (h *Hub) Watchers(riderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[riderID])
}

// Broadcast sends a payload to every watcher of a rider. With redis
// attached, delivery goes through pubsub so local clients receive the frame
// exactly once along with clients on other instances.
func (h *Hub) Broadcast(riderID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(riderID), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn().Err(err).Str("rider", riderID).Msg("redis publish error, delivering locally")
	}
	h.deliver(riderID, payload)
}

// deliver holds the read lock for the whole send loop so Unregister cannot
// mutate the client map or close a Send channel mid-iteration. Sends never
// block, a client whose buffer is full misses the frame.
func (h *Hub) deliver(riderID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[riderID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "live:*:summary")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(riderIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(riderID string) string {
	return "live:" + riderID + ":summary"
}

func riderIDFromChannel(ch string) string {
	// live:{rider}:summary
	const prefix = "live:"
	const suffix = ":summary"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
