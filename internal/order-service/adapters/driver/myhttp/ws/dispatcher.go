package ws

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
)

var websocketUpgrader = websocket.Upgrader{
	// TODO: add checkOrigin
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClientList is a map used to help manage a map of clients
type ClientList map[*Client]bool

// Dispatcher fans order updates out to connected drivers. It
// implements ports.IDispatchHub.
type Dispatcher struct {
	clients ClientList
	sync.RWMutex
	log mylogger.Logger
}

func NewDispatcher(log mylogger.Logger) *Dispatcher {
	return &Dispatcher{
		clients: make(ClientList),
		log:     log,
	}
}

func (d *Dispatcher) WsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := d.log.Action("wsHandler")

		driverId, err := strconv.ParseInt(r.PathValue("driver_id"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		conn, err := websocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("cannot upgrade", err)
			return
		}
		client := NewClient(r.Context(), conn, d, driverId)
		d.AddClient(client)
		go client.ReadMessage()
		go client.WriteMessage()
	}
}

func (d *Dispatcher) AddClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	d.clients[client] = true
}

func (d *Dispatcher) RemoveClient(client *Client) {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.clients[client]; ok {
		client.conn.Close()
		delete(d.clients, client)
	}
}

func (d *Dispatcher) WriteToDriver(driverID int64, msg dto.OrderStatusUpdate) {
	d.RLock()
	defer d.RUnlock()

	for client := range d.clients {
		if client.driverId == driverID {
			select {
			case client.egress <- msg:
			default:
			}
		}
	}
}

func (d *Dispatcher) Broadcast(msg dto.OrderStatusUpdate) {
	d.RLock()
	defer d.RUnlock()

	for client := range d.clients {
		select {
		case client.egress <- msg:
		default:
		}
	}
}

// Shutdown closes every connection.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.Lock()
	defer d.Unlock()

	for client := range d.clients {
		client.conn.Close()
		delete(d.clients, client)
	}
}
