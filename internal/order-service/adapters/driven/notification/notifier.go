package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

const (
	ackQueue = "order-service.acks"
	ackKey   = "notify.ack"
)

// Notifier publishes notices to the broker where bot front ends pick
// them up and turn them into chat messages. Each notice carries a
// handle id so a front end can later be told to edit or delete the
// message it produced. Front ends confirm delivery on the ack key;
// handles that never get confirmed stay in the pending set.
type Notifier struct {
	mylog  mylogger.Logger
	broker ports.IOrderBroker

	mu      sync.Mutex
	pending map[string]struct{} // handle ids published but not acked
}

func New(mylog mylogger.Logger, broker ports.IOrderBroker) *Notifier {
	return &Notifier{mylog: mylog, broker: broker, pending: make(map[string]struct{})}
}

type envelope struct {
	HandleID string       `json:"handle_id"`
	Notice   model.Notice `json:"notice"`
}

type editEnvelope struct {
	Handle model.MessageHandle `json:"handle"`
	Text   string              `json:"text,omitempty"`
}

func (n *Notifier) Notify(ctx context.Context, userID int64, text string) (model.MessageHandle, error) {
	h := model.MessageHandle{ID: uuid.NewString(), UserID: userID}
	body, err := json.Marshal(envelope{
		HandleID: h.ID,
		Notice:   model.Notice{Kind: model.NoticeDirect, UserID: userID, Text: text},
	})
	if err != nil {
		return model.MessageHandle{}, err
	}
	key := fmt.Sprintf(ports.NotifyUserKey, userID)
	if err := n.broker.Publish(ctx, key, body); err != nil {
		return model.MessageHandle{}, err
	}
	n.markPending(h.ID)
	return h, nil
}

func (n *Notifier) Announce(ctx context.Context, channel, text string, orderID int64) (model.MessageHandle, error) {
	h := model.MessageHandle{ID: uuid.NewString(), Channel: channel}
	body, err := json.Marshal(envelope{
		HandleID: h.ID,
		Notice:   model.Notice{Kind: model.NoticeChannel, Channel: channel, Text: text, OrderID: orderID},
	})
	if err != nil {
		return model.MessageHandle{}, err
	}
	key := fmt.Sprintf(ports.NotifyChannelKey, channel)
	if err := n.broker.Publish(ctx, key, body); err != nil {
		return model.MessageHandle{}, err
	}
	n.markPending(h.ID)
	return h, nil
}

func (n *Notifier) Update(ctx context.Context, h model.MessageHandle, text string) error {
	body, err := json.Marshal(editEnvelope{Handle: h, Text: text})
	if err != nil {
		return err
	}
	return n.broker.Publish(ctx, ports.NotifyUpdateKey, body)
}

func (n *Notifier) Retract(ctx context.Context, h model.MessageHandle) error {
	body, err := json.Marshal(editEnvelope{Handle: h})
	if err != nil {
		return err
	}
	return n.broker.Publish(ctx, ports.NotifyRetractKey, body)
}

func (n *Notifier) Close() error {
	return n.broker.Close()
}

type ackEnvelope struct {
	HandleID string `json:"handle_id"`
}

// ListenAcks drains delivery confirmations from the bot front ends
// until the context ends or the broker channel closes.
func (n *Notifier) ListenAcks(ctx context.Context) error {
	log := n.mylog.Action("ListenAcks")

	deliveries, err := n.broker.Consume(ctx, ackQueue, ackKey)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var ack ackEnvelope
			if err := json.Unmarshal(d.Body, &ack); err != nil {
				log.Warn("malformed ack, dropping")
				continue
			}
			n.confirm(ack.HandleID)
		}
	}
}

// PendingCount reports how many notices still await a front-end ack.
func (n *Notifier) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Notifier) markPending(handleID string) {
	n.mu.Lock()
	n.pending[handleID] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) confirm(handleID string) {
	n.mu.Lock()
	delete(n.pending, handleID)
	n.mu.Unlock()
}
