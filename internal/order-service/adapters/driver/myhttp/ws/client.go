package ws

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
)

type Client struct {
	ctx      context.Context
	conn     *websocket.Conn
	dis      *Dispatcher
	egress   chan dto.OrderStatusUpdate
	driverId int64
}

func NewClient(ctx context.Context, conn *websocket.Conn, dis *Dispatcher, driverId int64) *Client {
	return &Client{
		ctx:      ctx,
		conn:     conn,
		dis:      dis,
		egress:   make(chan dto.OrderStatusUpdate, 16),
		driverId: driverId,
	}
}

// ReadMessage drains the socket until the driver disconnects. Inbound
// payloads are ignored, the socket is push-only.
func (c *Client) ReadMessage() {
	defer c.dis.RemoveClient(c)
	c.conn.SetReadLimit(1024)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.dis.log.Action("wsRead").Warn("unexpected close", "driver_id", c.driverId)
			}
			break
		}
	}
}

func (c *Client) WriteMessage() {
	for {
		select {
		case <-c.ctx.Done():
			c.conn.Close()
			return
		case event, ok := <-c.egress:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.dis.RemoveClient(c)
				return
			}
		}
	}
}
