package ports

import "github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"

type IDispatchHub interface {
	// WriteToDriver pushes a status update to one connected driver.
	WriteToDriver(driverID int64, msg dto.OrderStatusUpdate)
	// Broadcast fans a fresh order out to every on-shift driver.
	Broadcast(msg dto.OrderStatusUpdate)
}
