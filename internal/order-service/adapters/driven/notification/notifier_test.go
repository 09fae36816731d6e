package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
)

type fakeBroker struct {
	mu         sync.Mutex
	published  map[string][][]byte
	deliveries chan amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		published:  make(map[string][][]byte),
		deliveries: make(chan amqp.Delivery, 8),
	}
}

func (f *fakeBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[routingKey] = append(f.published[routingKey], body)
	return nil
}

func (f *fakeBroker) Consume(ctx context.Context, queue, bindingKey string) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeBroker) Close() error { return nil }

func TestNotifyCarriesHandle(t *testing.T) {
	log, err := mylogger.New("ERROR")
	require.NoError(t, err)
	broker := newFakeBroker()
	n := New(log, broker)

	h, err := n.Notify(context.Background(), 42, "Водитель прибыл.")
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, int64(42), h.UserID)

	bodies := broker.published["notify.user.42"]
	require.Len(t, bodies, 1)
	var env envelope
	require.NoError(t, json.Unmarshal(bodies[0], &env))
	assert.Equal(t, h.ID, env.HandleID)
	assert.Equal(t, "Водитель прибыл.", env.Notice.Text)
}

func TestListenAcksClearsPending(t *testing.T) {
	log, err := mylogger.New("ERROR")
	require.NoError(t, err)
	broker := newFakeBroker()
	n := New(log, broker)

	h, err := n.Notify(context.Background(), 42, "Подтвердите поездку.")
	require.NoError(t, err)
	require.Equal(t, 1, n.PendingCount())

	done := make(chan error, 1)
	go func() { done <- n.ListenAcks(context.Background()) }()

	body, err := json.Marshal(ackEnvelope{HandleID: h.ID})
	require.NoError(t, err)
	broker.deliveries <- amqp.Delivery{Body: body}

	assert.Eventually(t, func() bool {
		return n.PendingCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// a closed delivery channel ends the listener cleanly
	close(broker.deliveries)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
