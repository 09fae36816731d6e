package ports

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	NotifyUserKey    = "notify.user.%d"
	NotifyChannelKey = "notify.channel.%s"
	NotifyUpdateKey  = "notify.update"
	NotifyRetractKey = "notify.retract"
)

type IOrderBroker interface {
	Close() error
	Publish(ctx context.Context, routingKey string, body []byte) error
	Consume(ctx context.Context, queue, bindingKey string) (<-chan amqp.Delivery, error)
}
