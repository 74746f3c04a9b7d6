package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Interest lets the route tell the aggregation layer which riders have
// watchers, so folding only runs while someone is looking.
type Interest interface {
	Ensure(riderID string) error
	Release(riderID string)
}

func RegisterRoutes(r fiber.Router, hub *Hub, interest Interest) {
	r.Get("/ws/:riderID", websocket.New(func(c *websocket.Conn) {
		riderID := c.Params("riderID")

		if interest != nil {
			if err := interest.Ensure(riderID); err != nil {
				_ = c.Close()
				return
			}
			defer interest.Release(riderID)
		}

		client := hub.Register(riderID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
