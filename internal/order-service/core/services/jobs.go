package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

type autoCancelArgs struct {
	OrderID int64 `json:"order_id"`
}

type flipArgs struct {
	OrderID int64 `json:"order_id"`
}

type remindArgs struct {
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id,omitempty"`
}

// RegisterJobHandlers binds every durable job kind to its handler.
// Handlers re-read the order before acting so a job that outlived its
// order, or fired after a manual transition, degrades to a no-op.
func (s *OrderService) RegisterJobHandlers(sched *scheduler.Scheduler) {
	sched.Register(HandlerAutoCancel, s.handleAutoCancel)
	sched.Register(HandlerFlipStatus, s.handleFlipStatus)
	sched.Register(HandlerRemind, s.handleRemind)
	sched.Register(HandlerRemindEnd30, s.handleRemindEnd(30*time.Minute))
	sched.Register(HandlerRemindEnd10, s.handleRemindEnd(10*time.Minute))
}

// handleAutoCancel fires when no driver claimed the order in time.
func (s *OrderService) handleAutoCancel(ctx context.Context, raw json.RawMessage) error {
	log := s.mylog.Action("handleAutoCancel")

	var args autoCancelArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, args.OrderID)
	if err != nil {
		return err
	}
	if o.Status != model.StatusRequested {
		log.Info("order already picked up, skipping", "order_id", o.ID, "status", o.Status.String())
		return nil
	}
	if err := s.transition(ctx, o.ID, model.StatusRequested, model.StatusCancelledNoDriver); err != nil {
		return err
	}
	s.appendHistory(ctx, o.ID, nil, model.StatusCancelledNoDriver.HistoryLabel(), "водитель не найден")
	s.retract(ctx, o.ID)
	// nobody claimed it, hide the row from listings but keep the audit
	if err := s.Orders.SoftDelete(ctx, o.ID); err != nil {
		log.Warn("cannot soft-delete order", "order_id", o.ID)
	}

	client, err := s.Parties.GetClient(ctx, o.ClientID)
	if err != nil {
		return err
	}
	s.notify(ctx, client.TgID,
		fmt.Sprintf("К сожалению, по заказу №%d не нашлось свободных водителей. Заказ отменен.", o.ID))
	log.Info("order auto-cancelled", "order_id", o.ID)
	return nil
}

// handleFlipStatus moves an accepted preorder into the active phase at
// its scheduled start.
func (s *OrderService) handleFlipStatus(ctx context.Context, raw json.RawMessage) error {
	log := s.mylog.Action("handleFlipStatus")

	var args flipArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, args.OrderID)
	if err != nil {
		return err
	}
	if o.Status != model.StatusPreorderAccepted {
		log.Info("preorder not in accepted state, skipping", "order_id", o.ID, "status", o.Status.String())
		return nil
	}
	if err := s.transition(ctx, o.ID, model.StatusPreorderAccepted, model.StatusDriverEnRoute); err != nil {
		return err
	}
	co, err := s.Orders.GetCurrentOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	s.appendHistory(ctx, o.ID, &co.DriverID, model.StatusDriverEnRoute.HistoryLabel(), "")
	s.notify(ctx, co.DriverTgID, fmt.Sprintf("Пора выезжать по предзаказу №%d.", o.ID))
	s.notify(ctx, co.ClientTgID, fmt.Sprintf("Водитель выехал по вашему предзаказу №%d.", o.ID))
	s.Hub.WriteToDriver(co.DriverID, dto.OrderStatusUpdate{
		OrderId: o.ID, Status: model.StatusDriverEnRoute.String(), At: time.Now(),
	})
	return nil
}

func (s *OrderService) handleRemind(ctx context.Context, raw json.RawMessage) error {
	var args remindArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, args.OrderID)
	if err != nil {
		return err
	}
	if o.Status != model.StatusPreorderAccepted {
		return nil
	}
	client, err := s.Parties.GetClient(ctx, args.UserID)
	if err != nil {
		return err
	}
	s.notify(ctx, client.TgID,
		fmt.Sprintf("Напоминание: предзаказ №%d стартует в %s.", o.ID, o.SubmissionTime.Format("15:04")))
	return nil
}

// handleRemindEnd warns both sides that a drive-around trip is about
// to run out. Extensions re-arm these jobs, so a stale one just finds
// the finish further away and keeps quiet.
func (s *OrderService) handleRemindEnd(left time.Duration) scheduler.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args remindArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return err
		}
		o, err := s.Orders.GetOrder(ctx, args.OrderID)
		if err != nil {
			return err
		}
		if o.Status != model.StatusInProgress {
			return nil
		}
		co, err := s.Orders.GetCurrentOrder(ctx, args.OrderID)
		if err != nil {
			return err
		}
		mins := int(left.Minutes())
		s.notify(ctx, co.ClientTgID,
			fmt.Sprintf("До конца поездки по заказу №%d осталось %d минут. Вы можете продлить ее.", o.ID, mins))
		s.notify(ctx, co.DriverTgID,
			fmt.Sprintf("До конца заказа №%d осталось %d минут.", o.ID, mins))
		return nil
	}
}
