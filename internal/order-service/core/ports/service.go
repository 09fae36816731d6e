package ports

import (
	"context"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
)

type IOrderService interface {
	SubmitOrder(ctx context.Context, req dto.SubmitOrderDto) (dto.OrderResponseDto, error)

	ReviewOrder(ctx context.Context, req dto.ReviewOrderDto) error
	DriverAccept(ctx context.Context, req dto.DriverDecisionDto) error
	DriverReject(ctx context.Context, req dto.DriverDecisionDto) error
	ClientAccept(ctx context.Context, req dto.ClientDecisionDto) error
	ClientRejectDriver(ctx context.Context, req dto.ClientDecisionDto) error

	MarkArrived(ctx context.Context, orderID, driverTgID int64) error
	StartTrip(ctx context.Context, orderID, driverTgID int64) error
	RequestExtension(ctx context.Context, req dto.ExtensionDto) (price int, err error)
	ConfirmExtension(ctx context.Context, req dto.ExtensionDto) error
	FinishTrip(ctx context.Context, orderID, driverTgID int64) error

	ConfirmPayment(ctx context.Context, req dto.PaymentDto) error
	ApplyBonuses(ctx context.Context, req dto.PaymentDto) error

	Cancel(ctx context.Context, req dto.CancelDto) error
	RateTrip(ctx context.Context, who string, req dto.RateDto) error
	SetReminderLead(ctx context.Context, req dto.ReminderPrefDto) error
	ProvideRejectReason(ctx context.Context, req dto.RejectReasonDto) error

	OrderHistory(ctx context.Context, orderID int64) ([]model.HistoryEntry, error)
	CurrentOrderFor(ctx context.Context, tgID int64) (model.CurrentOrder, error)
	UpcomingPreorders(ctx context.Context) ([]dto.PreorderSummaryDto, error)
}
