package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

const (
	HandlerAutoCancel  = "auto_cancel_no_driver"
	HandlerFlipStatus  = "switch_order_status"
	HandlerRemind      = "remind_preorder"
	HandlerRemindEnd30 = "remind_finish_30"
	HandlerRemindEnd10 = "remind_finish_10"
)

// cancelRetries bounds the re-read loop when a cancel races another
// transition on the same order.
const cancelRetries = 3

type OrderService struct {
	mylog    mylogger.Logger
	ctx      context.Context
	cfg      config.Fareconfig
	channel  string // dispatch channel name
	Orders   ports.IOrderRepo
	Parties  ports.IPartyRepo
	Notifier ports.INotifier
	Sched    ports.IScheduler
	Oracle   ports.IPricingOracle
	Sessions ports.ISessionStore
	Sealer   ports.ISealer
	Hub      ports.IDispatchHub
	fare     FareCalc
	waits    *waitTimers

	mu      sync.Mutex
	notices map[int64]model.MessageHandle // channel post per open order
}

func NewOrderService(ctx context.Context,
	log mylogger.Logger,
	cfg config.Fareconfig,
	channel string,
	orders ports.IOrderRepo,
	parties ports.IPartyRepo,
	notifier ports.INotifier,
	sched ports.IScheduler,
	oracle ports.IPricingOracle,
	sessions ports.ISessionStore,
	sealer ports.ISealer,
	hub ports.IDispatchHub,
) *OrderService {
	return &OrderService{
		ctx:      ctx,
		mylog:    log,
		cfg:      cfg,
		channel:  channel,
		Orders:   orders,
		Parties:  parties,
		Notifier: notifier,
		Sched:    sched,
		Oracle:   oracle,
		Sessions: sessions,
		Sealer:   sealer,
		Hub:      hub,
		fare:     NewFareCalc(cfg),
		waits:    newWaitTimers(),
		notices:  make(map[int64]model.MessageHandle),
	}
}

func (s *OrderService) SubmitOrder(ctx context.Context, req dto.SubmitOrderDto) (dto.OrderResponseDto, error) {
	log := s.mylog.Action("SubmitOrder")

	if err := validateSubmit(req); err != nil {
		return dto.OrderResponseDto{}, err
	}
	fareType := model.FareType(req.FareType)

	var submitAt time.Time
	if req.SubmissionTime != "" {
		t, err := time.Parse(time.RFC3339, req.SubmissionTime)
		if err != nil {
			return dto.OrderResponseDto{}, fmt.Errorf("invalid submission time: %v", err)
		}
		if !t.After(time.Now()) {
			return dto.OrderResponseDto{}, fmt.Errorf("submission time is in the past")
		}
		submitAt = t
	}

	client, err := s.Parties.GetClientByTgID(ctx, req.ClientTgId)
	if err != nil {
		log.Error("cannot load client", err, "client_tg_id", req.ClientTgId)
		return dto.OrderResponseDto{}, err
	}

	o := model.Order{
		ClientID:       client.ID,
		SubmissionTime: submitAt,
		PaymentMethod:  req.PaymentMethod,
		Comment:        req.Comment,
		Status:         model.StatusRequested,
		FareType:       fareType,
	}

	if fareType.IsDriveAround() {
		o.Price = s.fare.DriveAroundPrice(req.DriveAroundHours)
		o.TripTime = time.Duration(req.DriveAroundHours) * time.Hour
	} else {
		quote, err := s.Oracle.Route(ctx,
			model.Coords{Latitude: req.StartLatitude, Longitude: req.StartLongitude},
			model.Coords{Latitude: req.FinishLatitude, Longitude: req.FinishLongitude},
			fareType)
		if err != nil {
			log.Error("pricing oracle failed", err)
			return dto.OrderResponseDto{}, myerrors.ErrOracleDown
		}
		o.Price = quote.Price
		o.DistanceKm = quote.DistanceKm
		o.TripTime = quote.Duration
	}

	if o.Start, err = s.Sealer.Seal(req.StartAddress); err != nil {
		return dto.OrderResponseDto{}, err
	}
	if o.StartCoords, err = s.Sealer.Seal(fmtCoords(req.StartLatitude, req.StartLongitude)); err != nil {
		return dto.OrderResponseDto{}, err
	}
	if req.FinishAddress != "" {
		if o.Finish, err = s.Sealer.Seal(req.FinishAddress); err != nil {
			return dto.OrderResponseDto{}, err
		}
		if o.FinishCoords, err = s.Sealer.Seal(fmtCoords(req.FinishLatitude, req.FinishLongitude)); err != nil {
			return dto.OrderResponseDto{}, err
		}
	}

	orderID, err := s.Orders.CreateOrder(ctx, o)
	if err != nil {
		log.Error("cannot create order", err)
		return dto.OrderResponseDto{}, err
	}
	o.ID = orderID

	s.appendHistory(ctx, orderID, nil, model.StatusRequested.HistoryLabel(), "")

	if fareType.IsPreorder() {
		s.schedulePreorder(ctx, o)
	} else {
		err = s.Sched.Add(ctx, scheduler.DispatchKey(orderID),
			time.Now().Add(time.Duration(s.cfg.DispatchTimeout)*time.Minute),
			HandlerAutoCancel, autoCancelArgs{OrderID: orderID})
		if errors.Is(err, scheduler.ErrJobExists) {
			log.Warn("dispatch timer already present", "order_id", orderID)
		} else if err != nil {
			log.Error("cannot arm dispatch timer", err, "order_id", orderID)
		}
	}

	s.announce(ctx, o, client)
	s.Hub.Broadcast(dto.OrderStatusUpdate{OrderId: orderID, Status: o.Status.String(), At: time.Now()})

	log.Info("order submitted", "order_id", orderID, "fare_type", int(fareType), "price", o.Price)
	return dto.OrderResponseDto{
		OrderId:     orderID,
		Status:      o.Status.String(),
		Price:       o.Price,
		DistanceKm:  o.DistanceKm,
		TripMinutes: o.TripTime.Minutes(),
	}, nil
}

// ReviewOrder locks the order for one driver while they decide. A
// driver with an empty wallet or another order in flight cannot take
// the lock.
func (s *OrderService) ReviewOrder(ctx context.Context, req dto.ReviewOrderDto) error {
	log := s.mylog.Action("ReviewOrder")

	driver, err := s.Parties.GetDriverByTgID(ctx, req.DriverTgId)
	if err != nil {
		return err
	}
	if driver.Wallet <= 0 {
		return myerrors.ErrNegativeBalance
	}
	if driver.ShiftStatus == model.DriverBusy {
		return myerrors.ErrDriverBusy
	}

	if err := s.transition(ctx, req.OrderId, model.StatusRequested, model.StatusUnderDriverReview); err != nil {
		log.Warn("order no longer available for review", "order_id", req.OrderId, "driver_id", driver.ID)
		return err
	}
	if err := s.Parties.SetDriverShiftStatus(ctx, driver.ID, model.DriverBusy); err != nil {
		log.Warn("cannot mark driver busy", "driver_id", driver.ID)
	}
	s.appendHistory(ctx, req.OrderId, &driver.ID, model.StatusUnderDriverReview.HistoryLabel(), "")
	s.setSession(ctx, driver.TgID, ports.SessionReviewingOrder, req.OrderId)

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if client, err := s.Parties.GetClient(ctx, o.ClientID); err == nil {
		s.notify(ctx, client.TgID, fmt.Sprintf("Водитель изучает ваш заказ №%d.", req.OrderId))
	}
	return nil
}

func (s *OrderService) DriverAccept(ctx context.Context, req dto.DriverDecisionDto) error {
	log := s.mylog.Action("DriverAccept")

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	driver, err := s.Parties.GetDriverByTgID(ctx, req.DriverTgId)
	if err != nil {
		return err
	}
	// only the driver holding the review lock may claim the order
	if holder, ok := s.reviewingDriver(ctx, req.OrderId); !ok || holder != driver.ID {
		return myerrors.ErrWrongDriver
	}
	client, err := s.Parties.GetClient(ctx, o.ClientID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, req.OrderId, model.StatusUnderDriverReview, model.StatusAcceptedForming); err != nil {
		return err
	}

	travel := time.Duration(req.TravelTimeToClientMinutes) * time.Minute
	if travel == 0 && (req.Latitude != 0 || req.Longitude != 0) {
		travel = s.estimateTravel(ctx, o, model.Coords{Latitude: req.Latitude, Longitude: req.Longitude})
	}

	co := model.CurrentOrder{
		OrderID:            o.ID,
		DriverID:           driver.ID,
		DriverTgID:         driver.TgID,
		DriverUsername:     driver.Username,
		ClientID:           client.ID,
		ClientTgID:         client.TgID,
		ClientUsername:     client.Username,
		TravelTimeToClient: travel,
	}
	if co.TravelTimeToClient > 0 {
		co.ScheduledArrival = time.Now().Add(co.TravelTimeToClient)
	}
	// immediate rides carry the driver's live position, sealed like
	// every other address field
	if req.Location != "" {
		if co.DriverLocation, err = s.Sealer.Seal(req.Location); err != nil {
			return err
		}
	}
	if req.Latitude != 0 || req.Longitude != 0 {
		if co.DriverCoords, err = s.Sealer.Seal(fmtCoords(req.Latitude, req.Longitude)); err != nil {
			return err
		}
	}
	if err := s.Orders.CreateCurrentOrder(ctx, co); err != nil {
		log.Error("cannot create current order", err, "order_id", o.ID)
		return err
	}
	if err := s.Parties.SetDriverShiftStatus(ctx, driver.ID, model.DriverBusy); err != nil {
		log.Warn("cannot mark driver busy", "driver_id", driver.ID)
	}
	s.retract(ctx, o.ID)

	if o.FareType.IsPreorder() {
		if err := s.transition(ctx, o.ID, model.StatusAcceptedForming, model.StatusPreorderAccepted); err != nil {
			return err
		}
		s.appendHistory(ctx, o.ID, &driver.ID, model.StatusPreorderAccepted.HistoryLabel(), "")
		if err := s.Sched.Remove(ctx, scheduler.DispatchKey(o.ID)); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
			log.Warn("cannot disarm dispatch timer", "order_id", o.ID)
		}
		s.setSession(ctx, driver.TgID, ports.SessionOnTrip, o.ID)
		s.setSession(ctx, client.TgID, ports.SessionOnTrip, o.ID)
		s.notify(ctx, client.TgID, fmt.Sprintf("Водитель %s принял ваш предзаказ №%d.", driver.Username, o.ID))
		return nil
	}

	if err := s.transition(ctx, o.ID, model.StatusAcceptedForming, model.StatusUnderClientReview); err != nil {
		return err
	}
	s.setSession(ctx, driver.TgID, ports.SessionOnTrip, o.ID)
	s.setSession(ctx, client.TgID, ports.SessionConfirmDriver, o.ID)
	s.notify(ctx, client.TgID,
		fmt.Sprintf("Водитель %s готов принять заказ №%d. Подтвердите поездку.", driver.Username, o.ID))
	return nil
}

// DriverReject returns the order to the common pool.
func (s *OrderService) DriverReject(ctx context.Context, req dto.DriverDecisionDto) error {
	log := s.mylog.Action("DriverReject")

	driver, err := s.Parties.GetDriverByTgID(ctx, req.DriverTgId)
	if err != nil {
		return err
	}
	if holder, ok := s.reviewingDriver(ctx, req.OrderId); !ok || holder != driver.ID {
		return myerrors.ErrWrongDriver
	}

	if err := s.transition(ctx, req.OrderId, model.StatusUnderDriverReview, model.StatusRequested); err != nil {
		return err
	}
	if err := s.Parties.SetDriverShiftStatus(ctx, driver.ID, model.DriverOnShift); err != nil {
		log.Warn("cannot free driver", "driver_id", driver.ID)
	}
	s.clearSession(ctx, driver.TgID)
	s.appendHistory(ctx, req.OrderId, &driver.ID, "отклонен водителем", "")

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	client, err := s.Parties.GetClient(ctx, o.ClientID)
	if err != nil {
		return err
	}
	s.notify(ctx, client.TgID, fmt.Sprintf("Водитель отказался от заказа №%d, ищем другого.", req.OrderId))
	s.announce(ctx, o, client)
	log.Info("driver rejected order", "order_id", req.OrderId, "driver_id", driver.ID)
	return nil
}

func (s *OrderService) ClientAccept(ctx context.Context, req dto.ClientDecisionDto) error {
	log := s.mylog.Action("ClientAccept")

	co, err := s.Orders.GetCurrentOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if co.ClientTgID != req.ClientTgId {
		return myerrors.ErrNotParticipant
	}
	if err := s.transition(ctx, req.OrderId, model.StatusUnderClientReview, model.StatusDriverEnRoute); err != nil {
		return err
	}
	s.appendHistory(ctx, req.OrderId, &co.DriverID, model.StatusDriverEnRoute.HistoryLabel(), "")
	if err := s.Sched.Remove(ctx, scheduler.DispatchKey(req.OrderId)); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		log.Warn("cannot disarm dispatch timer", "order_id", req.OrderId)
	}
	s.setSession(ctx, co.ClientTgID, ports.SessionOnTrip, req.OrderId)
	s.notify(ctx, co.DriverTgID, fmt.Sprintf("Клиент подтвердил заказ №%d. Можно выезжать.", req.OrderId))
	s.Hub.WriteToDriver(co.DriverID, dto.OrderStatusUpdate{
		OrderId: req.OrderId, Status: model.StatusDriverEnRoute.String(), At: time.Now(),
	})
	return nil
}

// ClientRejectDriver reopens the order for other drivers.
func (s *OrderService) ClientRejectDriver(ctx context.Context, req dto.ClientDecisionDto) error {
	log := s.mylog.Action("ClientRejectDriver")

	co, err := s.Orders.GetCurrentOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if co.ClientTgID != req.ClientTgId {
		return myerrors.ErrNotParticipant
	}
	if err := s.transition(ctx, req.OrderId, model.StatusUnderClientReview, model.StatusRequested); err != nil {
		return err
	}
	if err := s.Orders.DeleteCurrentOrder(ctx, req.OrderId); err != nil {
		log.Error("cannot drop current order", err, "order_id", req.OrderId)
	}
	if err := s.Parties.SetDriverShiftStatus(ctx, co.DriverID, model.DriverOnShift); err != nil {
		log.Warn("cannot free driver", "driver_id", co.DriverID)
	}
	s.clearSession(ctx, co.DriverTgID)

	reason := req.Reason
	if reason == "" {
		// park the dialog until the client types a free-text reason,
		// remembering which driver it was about
		reason = "клиент выбрал другого водителя"
		s.setSessionFields(ctx, co.ClientTgID, ports.SessionAwaitingReason, req.OrderId,
			map[string]string{"driver_id": strconv.FormatInt(co.DriverID, 10)})
	}
	s.appendHistory(ctx, req.OrderId, &co.DriverID, model.StatusRequested.HistoryLabel(), reason)
	s.notify(ctx, co.DriverTgID, fmt.Sprintf("Клиент отклонил вашу кандидатуру по заказу №%d.", req.OrderId))

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	client, err := s.Parties.GetClient(ctx, o.ClientID)
	if err != nil {
		return err
	}
	s.announce(ctx, o, client)
	return nil
}

// ProvideRejectReason closes the free-text follow-up after a client
// turned a driver down without giving a reason. The text lands in the
// order history next to the rejection itself.
func (s *OrderService) ProvideRejectReason(ctx context.Context, req dto.RejectReasonDto) error {
	if req.Reason == "" {
		return fmt.Errorf("reason must not be empty")
	}
	sess, err := s.Sessions.Get(ctx, req.ClientTgId)
	if err != nil {
		return err
	}
	if sess.State != ports.SessionAwaitingReason || sess.OrderID == 0 {
		return myerrors.ErrBadTransition
	}

	driverID, _ := strconv.ParseInt(sess.Fields["driver_id"], 10, 64)
	var driverRef *int64
	if driverID != 0 {
		driverRef = &driverID
	}
	s.appendHistory(ctx, sess.OrderID, driverRef,
		fmt.Sprintf("отказ от водителя %d", driverID),
		fmt.Sprintf("причина отказа: %s", req.Reason))
	s.clearSession(ctx, req.ClientTgId)
	return nil
}

func (s *OrderService) MarkArrived(ctx context.Context, orderID, driverTgID int64) error {
	log := s.mylog.Action("MarkArrived")

	co, err := s.Orders.GetCurrentOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if co.DriverTgID != driverTgID {
		return myerrors.ErrWrongDriver
	}
	if err := s.transition(ctx, orderID, model.StatusDriverEnRoute, model.StatusDriverArrived); err != nil {
		return err
	}
	co.ActualArrival = time.Now()
	if err := s.Orders.UpdateCurrentOrderTimes(ctx, co); err != nil {
		log.Error("cannot record arrival", err, "order_id", orderID)
	}
	s.appendHistory(ctx, orderID, &co.DriverID, model.StatusDriverArrived.HistoryLabel(), "")

	free := time.Duration(s.cfg.WaitFreeSeconds) * time.Second
	window := time.Duration(s.cfg.WaitWindowSeconds) * time.Second
	var waitNotice model.MessageHandle
	s.waits.Start(orderID, free, window, func(elapsed time.Duration) {
		surcharge := s.fare.WaitingSurcharge(elapsed)
		text := fmt.Sprintf("Водитель ожидает вас. Платное ожидание: +%d к цене заказа.", surcharge)
		// first tick sends the notice, later ticks edit it in place
		// so the client sees one running counter instead of spam
		if waitNotice.IsZero() {
			h, err := s.Notifier.Notify(s.ctx, co.ClientTgID, text)
			if err != nil {
				log.Error("cannot deliver waiting notice", err, "order_id", orderID)
				return
			}
			waitNotice = h
			return
		}
		if err := s.Notifier.Update(s.ctx, waitNotice, text); err != nil {
			log.Warn("cannot refresh waiting notice", "order_id", orderID)
		}
	})

	s.notify(ctx, co.ClientTgID, fmt.Sprintf("Водитель прибыл по заказу №%d и ожидает вас.", orderID))
	return nil
}

func (s *OrderService) StartTrip(ctx context.Context, orderID, driverTgID int64) error {
	log := s.mylog.Action("StartTrip")

	co, err := s.Orders.GetCurrentOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if co.DriverTgID != driverTgID {
		return myerrors.ErrWrongDriver
	}
	if err := s.transition(ctx, orderID, model.StatusDriverArrived, model.StatusInProgress); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	waited := s.waits.Stop(orderID)
	if surcharge := s.fare.WaitingSurcharge(waited); surcharge > 0 {
		if err := s.Orders.AddToPrice(ctx, orderID, surcharge); err != nil {
			log.Error("cannot add waiting surcharge", err, "order_id", orderID)
		} else {
			o.Price += surcharge
			log.Info("waiting surcharge applied", "order_id", orderID, "surcharge", surcharge)
		}
	}

	now := time.Now()
	co.TripStart = now
	if o.TripTime > 0 {
		co.ScheduledFinish = now.Add(o.TripTime)
	}
	if err := s.Orders.UpdateCurrentOrderTimes(ctx, co); err != nil {
		log.Error("cannot record trip start", err, "order_id", orderID)
	}
	s.appendHistory(ctx, orderID, &co.DriverID, model.StatusInProgress.HistoryLabel(), "")

	if o.FareType.IsDriveAround() && !co.ScheduledFinish.IsZero() {
		s.armEndReminders(ctx, orderID, co.ScheduledFinish)
	}
	return nil
}

// RequestExtension quotes extra drive-around hours without changing
// anything yet.
func (s *OrderService) RequestExtension(ctx context.Context, req dto.ExtensionDto) (int, error) {
	if req.Hours <= 0 {
		return 0, fmt.Errorf("extension hours must be positive")
	}
	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return 0, err
	}
	if !o.FareType.IsDriveAround() {
		return 0, fmt.Errorf("only drive-around orders can be extended")
	}
	if o.Status != model.StatusInProgress {
		return 0, myerrors.ErrBadTransition
	}
	return s.fare.ExtensionPrice(req.Hours), nil
}

func (s *OrderService) ConfirmExtension(ctx context.Context, req dto.ExtensionDto) error {
	log := s.mylog.Action("ConfirmExtension")

	price, err := s.RequestExtension(ctx, req)
	if err != nil {
		return err
	}
	co, err := s.Orders.GetCurrentOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if req.UserTgId != co.ClientTgID && req.UserTgId != co.DriverTgID {
		return myerrors.ErrNotParticipant
	}

	if err := s.Orders.AddToPrice(ctx, req.OrderId, price); err != nil {
		return err
	}
	co.ScheduledFinish = co.ScheduledFinish.Add(time.Duration(req.Hours) * time.Hour)
	if err := s.Orders.UpdateCurrentOrderTimes(ctx, co); err != nil {
		return err
	}
	s.appendHistory(ctx, req.OrderId, &co.DriverID, "поездка продлена", fmt.Sprintf("+%d ч", req.Hours))
	s.armEndReminders(ctx, req.OrderId, co.ScheduledFinish)

	s.notify(ctx, co.DriverTgID, fmt.Sprintf("Заказ №%d продлен на %d ч. Цена увеличена на %d.", req.OrderId, req.Hours, price))
	log.Info("trip extended", "order_id", req.OrderId, "hours", req.Hours, "extra", price)
	return nil
}

func (s *OrderService) FinishTrip(ctx context.Context, orderID, driverTgID int64) error {
	log := s.mylog.Action("FinishTrip")

	co, err := s.Orders.GetCurrentOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if co.DriverTgID != driverTgID {
		return myerrors.ErrWrongDriver
	}
	if err := s.transition(ctx, orderID, model.StatusInProgress, model.StatusAwaitingPayment); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	co.ActualFinish = time.Now()
	if err := s.Orders.UpdateCurrentOrderTimes(ctx, co); err != nil {
		log.Error("cannot record finish", err, "order_id", orderID)
	}
	s.disarmEndReminders(ctx, orderID)
	s.appendHistory(ctx, orderID, &co.DriverID, model.StatusAwaitingPayment.HistoryLabel(), "")
	s.notify(ctx, co.ClientTgID,
		fmt.Sprintf("Поездка по заказу №%d завершена. К оплате: %d (%s).", orderID, o.Price-o.PaymentWithBonuses, o.PaymentMethod))
	return nil
}

// ApplyBonuses spends part of the client's bonus balance on the order.
// The write-off is capped at a share of the balance, never the whole
// of it.
func (s *OrderService) ApplyBonuses(ctx context.Context, req dto.PaymentDto) error {
	log := s.mylog.Action("ApplyBonuses")

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if o.Status != model.StatusAwaitingPayment && o.Status != model.StatusRequested {
		return myerrors.ErrBadTransition
	}
	client, err := s.Parties.GetClientByTgID(ctx, req.UserTgId)
	if err != nil {
		return err
	}
	if client.ID != o.ClientID {
		return myerrors.ErrNotParticipant
	}

	amount := req.UseBonuses
	if limit := s.fare.MaxBonusWriteOff(client.Bonuses); amount > limit {
		amount = limit
	}
	if amount > o.Price {
		amount = o.Price
	}
	if amount <= 0 {
		return fmt.Errorf("nothing to write off")
	}

	if err := s.Parties.AddBonuses(ctx, client.ID, -amount); err != nil {
		return err
	}
	if err := s.Orders.SetPaymentWithBonuses(ctx, req.OrderId, amount); err != nil {
		log.Error("cannot store bonus payment, refunding", err, "order_id", req.OrderId)
		if rerr := s.Parties.AddBonuses(ctx, client.ID, amount); rerr != nil {
			log.Error("refund failed", rerr, "client_id", client.ID, "amount", amount)
		}
		return err
	}
	log.Info("bonuses applied", "order_id", req.OrderId, "amount", amount)
	return nil
}

// ConfirmPayment settles the order. The driver's wallet is credited
// the commission share, the client earns bonuses on the cash part,
// both trip counters move, and the driver goes back on shift.
func (s *OrderService) ConfirmPayment(ctx context.Context, req dto.PaymentDto) error {
	log := s.mylog.Action("ConfirmPayment")

	co, err := s.Orders.GetCurrentOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if req.UserTgId != co.ClientTgID && req.UserTgId != co.DriverTgID {
		return myerrors.ErrNotParticipant
	}
	if err := s.transition(ctx, req.OrderId, model.StatusAwaitingPayment, model.StatusCompleted); err != nil {
		return err
	}
	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}

	commission := s.fare.Commission(o.Price, o.PaymentWithBonuses)
	if err := s.Parties.AddToWallet(ctx, co.DriverID, commission); err != nil {
		log.Error("cannot credit commission", err, "driver_id", co.DriverID, "commission", commission)
	}
	if earned := s.fare.BonusesEarned(o.Price, o.PaymentWithBonuses); earned > 0 {
		if err := s.Parties.AddBonuses(ctx, co.ClientID, earned); err != nil {
			log.Error("cannot accrue bonuses", err, "client_id", co.ClientID)
		}
	}
	if err := s.Parties.BumpDriverTrips(ctx, co.DriverID); err != nil {
		log.Warn("cannot bump driver trips", "driver_id", co.DriverID)
	}
	if err := s.Parties.BumpClientTrips(ctx, co.ClientID); err != nil {
		log.Warn("cannot bump client trips", "client_id", co.ClientID)
	}
	if err := s.Parties.SetDriverShiftStatus(ctx, co.DriverID, model.DriverOnShift); err != nil {
		log.Warn("cannot free driver", "driver_id", co.DriverID)
	}

	s.appendHistory(ctx, req.OrderId, &co.DriverID, model.StatusCompleted.HistoryLabel(), "")
	if err := s.Orders.DeleteCurrentOrder(ctx, req.OrderId); err != nil {
		log.Error("cannot drop current order", err, "order_id", req.OrderId)
	}
	s.removeAllJobs(ctx, req.OrderId, co.ClientID)
	s.clearSession(ctx, co.ClientTgID)
	s.clearSession(ctx, co.DriverTgID)

	s.notify(ctx, co.ClientTgID, fmt.Sprintf("Заказ №%d завершен. Оцените поездку от 1 до 5.", req.OrderId))
	s.notify(ctx, co.DriverTgID, fmt.Sprintf("Оплата по заказу №%d получена. Комиссия: %d.", req.OrderId, commission))
	log.Info("order completed", "order_id", req.OrderId, "commission", commission)
	return nil
}

// Cancel ends the order from either side at any non-terminal point.
// The status write is a compare-and-set against the status just read,
// so a cancel racing a settlement either lands cleanly or re-reads and
// gives up on a terminal order. Side effects run only after the write
// sticks.
func (s *OrderService) Cancel(ctx context.Context, req dto.CancelDto) error {
	log := s.mylog.Action("Cancel")

	for attempt := 0; attempt < cancelRetries; attempt++ {
		o, err := s.Orders.GetOrder(ctx, req.OrderId)
		if err != nil {
			return err
		}
		if IsTerminal(o.Status) {
			return myerrors.ErrBadTransition
		}

		var driverID *int64
		var counterpartTg int64
		var co model.CurrentOrder
		var haveCO bool

		if HasDriver(o.Status) {
			co, err = s.Orders.GetCurrentOrder(ctx, req.OrderId)
			if err != nil {
				return err
			}
			haveCO = true
			if req.UserTgId != co.ClientTgID && req.UserTgId != co.DriverTgID {
				return myerrors.ErrNotParticipant
			}
		} else {
			if err := s.verifyCancelParty(ctx, o, req.UserTgId); err != nil {
				return err
			}
		}

		if err := s.transition(ctx, req.OrderId, o.Status, model.StatusCancelledByParty); err != nil {
			if errors.Is(err, myerrors.ErrStaleStatus) {
				log.Warn("cancel raced another transition, re-reading", "order_id", req.OrderId)
				continue
			}
			return err
		}

		if haveCO {
			driverID = &co.DriverID
			if req.UserTgId == co.ClientTgID {
				counterpartTg = co.DriverTgID
			} else {
				counterpartTg = co.ClientTgID
			}
			if err := s.Parties.SetDriverShiftStatus(ctx, co.DriverID, model.DriverOnShift); err != nil {
				log.Warn("cannot free driver", "driver_id", co.DriverID)
			}
			if err := s.Orders.DeleteCurrentOrder(ctx, req.OrderId); err != nil {
				log.Error("cannot drop current order", err, "order_id", req.OrderId)
			}
			s.clearSession(ctx, co.ClientTgID)
			s.clearSession(ctx, co.DriverTgID)
		} else if o.Status == model.StatusUnderDriverReview {
			// the reviewing driver has no current-order row yet but
			// holds the busy flag, release them too
			if revID, ok := s.reviewingDriver(ctx, req.OrderId); ok {
				driverID = &revID
				if err := s.Parties.SetDriverShiftStatus(ctx, revID, model.DriverOnShift); err != nil {
					log.Warn("cannot free reviewing driver", "driver_id", revID)
				}
				if d, err := s.Parties.GetDriver(ctx, revID); err == nil {
					s.clearSession(ctx, d.TgID)
					counterpartTg = d.TgID
				}
			}
		}

		s.waits.Stop(req.OrderId)
		s.appendHistory(ctx, req.OrderId, driverID, model.StatusCancelledByParty.HistoryLabel(), req.Reason)
		s.removeAllJobs(ctx, req.OrderId, o.ClientID)
		s.retract(ctx, req.OrderId)

		if counterpartTg != 0 {
			s.notify(ctx, counterpartTg, fmt.Sprintf("Заказ №%d отменен. %s", req.OrderId, req.Reason))
		}
		log.Info("order cancelled", "order_id", req.OrderId, "by_tg_id", req.UserTgId)
		return nil
	}
	return myerrors.ErrStaleStatus
}

// verifyCancelParty checks a cancel on an order that has no driver
// snapshot yet: the owning client may always cancel, the reviewing
// driver may cancel while they hold the review lock.
func (s *OrderService) verifyCancelParty(ctx context.Context, o model.Order, userTgID int64) error {
	if client, err := s.Parties.GetClientByTgID(ctx, userTgID); err == nil && client.ID == o.ClientID {
		return nil
	}
	if o.Status == model.StatusUnderDriverReview {
		if revID, ok := s.reviewingDriver(ctx, o.ID); ok {
			if d, err := s.Parties.GetDriverByTgID(ctx, userTgID); err == nil && d.ID == revID {
				return nil
			}
		}
	}
	return myerrors.ErrNotParticipant
}

func (s *OrderService) RateTrip(ctx context.Context, who string, req dto.RateDto) error {
	if req.Stars < 1 || req.Stars > 5 {
		return fmt.Errorf("stars must be in 1..5")
	}
	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if o.Status != model.StatusCompleted {
		return myerrors.ErrBadTransition
	}
	hist, err := s.Orders.History(ctx, req.OrderId)
	if err != nil {
		return err
	}
	var driverID int64
	for _, e := range hist {
		if e.DriverID != nil {
			driverID = *e.DriverID
		}
	}
	switch who {
	case "client":
		if driverID == 0 {
			return myerrors.ErrDriverNotFound
		}
		return s.Parties.RateDriver(ctx, driverID, req.Stars)
	case "driver":
		return s.Parties.RateClient(ctx, o.ClientID, req.Stars)
	default:
		return fmt.Errorf("unknown rater %q", who)
	}
}

// SetReminderLead lets the client pick their own heads-up for a
// preorder instead of the graduated default.
func (s *OrderService) SetReminderLead(ctx context.Context, req dto.ReminderPrefDto) error {
	log := s.mylog.Action("SetReminderLead")

	o, err := s.Orders.GetOrder(ctx, req.OrderId)
	if err != nil {
		return err
	}
	if !o.FareType.IsPreorder() || o.SubmissionTime.IsZero() {
		return fmt.Errorf("order has no scheduled start")
	}
	runAt := o.SubmissionTime.Add(-time.Duration(req.LeadMinutes) * time.Minute)
	if !runAt.After(time.Now()) {
		return fmt.Errorf("reminder would fire in the past")
	}

	key := scheduler.RemindKey(o.ID, o.ClientID)
	if err := s.Sched.Remove(ctx, key); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		log.Warn("cannot drop previous reminder", "order_id", o.ID)
	}
	return s.Sched.Add(ctx, key, runAt, HandlerRemind, remindArgs{OrderID: o.ID, UserID: o.ClientID})
}

func (s *OrderService) OrderHistory(ctx context.Context, orderID int64) ([]model.HistoryEntry, error) {
	return s.Orders.History(ctx, orderID)
}

// CurrentOrderFor finds the live order either party is riding in.
func (s *OrderService) CurrentOrderFor(ctx context.Context, tgID int64) (model.CurrentOrder, error) {
	return s.Orders.GetCurrentOrderByTgID(ctx, tgID)
}

// UpcomingPreorders lists accepted preorders that have not started
// yet, stripped down to what the driver feed may show.
func (s *OrderService) UpcomingPreorders(ctx context.Context) ([]dto.PreorderSummaryDto, error) {
	orders, err := s.Orders.ActivePreorders(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	out := make([]dto.PreorderSummaryDto, 0, len(orders))
	for _, o := range orders {
		out = append(out, dto.PreorderSummaryDto{
			OrderId:  o.ID,
			StartsAt: o.SubmissionTime,
			Price:    o.Price,
			FareType: int(o.FareType),
		})
	}
	return out, nil
}

// --- helpers ---

// transition guards every status write with the lifecycle graph before
// applying it as a compare-and-set.
func (s *OrderService) transition(ctx context.Context, orderID int64, from, to model.Status) error {
	if !CanTransition(from, to) {
		return myerrors.ErrBadTransition
	}
	return s.Orders.SetStatus(ctx, orderID, from, to)
}

// reviewingDriver reads the review lock out of the history: the last
// row names the driver currently deciding, if any.
func (s *OrderService) reviewingDriver(ctx context.Context, orderID int64) (int64, bool) {
	hist, err := s.Orders.History(ctx, orderID)
	if err != nil || len(hist) == 0 {
		return 0, false
	}
	last := hist[len(hist)-1]
	if last.Label == model.StatusUnderDriverReview.HistoryLabel() && last.DriverID != nil {
		return *last.DriverID, true
	}
	return 0, false
}

// estimateTravel asks the maps oracle for driver-to-client time when
// the driver sent coordinates but no estimate of their own. Failures
// degrade to "unknown", the arrival is simply not scheduled.
func (s *OrderService) estimateTravel(ctx context.Context, o model.Order, from model.Coords) time.Duration {
	log := s.mylog.Action("estimateTravel")

	plain, err := s.Sealer.Open(o.StartCoords)
	if err != nil {
		log.Warn("cannot open pickup coords", "order_id", o.ID)
		return 0
	}
	to, err := parseCoords(plain)
	if err != nil {
		log.Warn("malformed pickup coords", "order_id", o.ID)
		return 0
	}
	eta, err := s.Oracle.Travel(ctx, from, to)
	if err != nil {
		log.Warn("travel estimate unavailable", "order_id", o.ID)
		return 0
	}
	return eta
}

func (s *OrderService) appendHistory(ctx context.Context, orderID int64, driverID *int64, label, reason string) {
	err := s.Orders.AppendHistory(ctx, model.HistoryEntry{
		OrderID:   orderID,
		DriverID:  driverID,
		Label:     label,
		Reason:    reason,
		OrderTime: time.Now(),
	})
	if err != nil {
		s.mylog.Action("appendHistory").Error("cannot append history", err, "order_id", orderID, "label", label)
	}
}

func (s *OrderService) notify(ctx context.Context, tgID int64, text string) {
	if tgID == 0 {
		return
	}
	if _, err := s.Notifier.Notify(ctx, tgID, text); err != nil {
		s.mylog.Action("notify").Error("cannot deliver notice", err, "user_id", tgID)
	}
}

func (s *OrderService) announce(ctx context.Context, o model.Order, client model.Client) {
	log := s.mylog.Action("announce")

	text := fmt.Sprintf("Новый заказ №%d. Цена: %d. Способ оплаты: %s.", o.ID, o.Price, o.PaymentMethod)
	if o.FareType.IsPreorder() {
		text = fmt.Sprintf("Предзаказ №%d на %s. Цена: %d.", o.ID, o.SubmissionTime.Format("02.01 15:04"), o.Price)
	}
	h, err := s.Notifier.Announce(ctx, s.channel, text, o.ID)
	if err != nil {
		log.Error("cannot announce order", err, "order_id", o.ID)
		return
	}
	s.mu.Lock()
	s.notices[o.ID] = h
	s.mu.Unlock()
}

func (s *OrderService) retract(ctx context.Context, orderID int64) {
	s.mu.Lock()
	h, ok := s.notices[orderID]
	delete(s.notices, orderID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Notifier.Retract(ctx, h); err != nil {
		s.mylog.Action("retract").Warn("cannot retract announcement", "order_id", orderID)
	}
}

func (s *OrderService) clearSession(ctx context.Context, tgID int64) {
	if tgID == 0 {
		return
	}
	if err := s.Sessions.Clear(ctx, tgID); err != nil {
		s.mylog.Action("clearSession").Warn("cannot clear session", "user_id", tgID)
	}
}

func (s *OrderService) setSession(ctx context.Context, tgID int64, state ports.SessionState, orderID int64) {
	s.setSessionFields(ctx, tgID, state, orderID, nil)
}

func (s *OrderService) setSessionFields(ctx context.Context, tgID int64, state ports.SessionState, orderID int64, fields map[string]string) {
	if tgID == 0 {
		return
	}
	err := s.Sessions.Put(ctx, ports.Session{UserID: tgID, State: state, OrderID: orderID, Fields: fields})
	if err != nil {
		s.mylog.Action("setSession").Warn("cannot store session", "user_id", tgID, "state", string(state))
	}
}

func (s *OrderService) removeAllJobs(ctx context.Context, orderID, clientID int64) {
	log := s.mylog.Action("removeAllJobs")
	keys := []scheduler.JobKey{
		scheduler.DispatchKey(orderID),
		scheduler.FlipKey(orderID),
		scheduler.RemindKey(orderID, clientID),
		scheduler.Remind30Key(orderID),
		scheduler.Remind10Key(orderID),
	}
	for _, k := range keys {
		if err := s.Sched.Remove(ctx, k); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
			log.Warn("cannot remove job", "job_id", k.String())
		}
	}
}

func (s *OrderService) schedulePreorder(ctx context.Context, o model.Order) {
	log := s.mylog.Action("schedulePreorder")

	if err := s.Sched.Add(ctx, scheduler.FlipKey(o.ID), o.SubmissionTime,
		HandlerFlipStatus, flipArgs{OrderID: o.ID}); err != nil {
		log.Error("cannot arm preorder flip", err, "order_id", o.ID)
	}
	lead, ok := ReminderLead(time.Until(o.SubmissionTime))
	if !ok {
		return
	}
	err := s.Sched.Add(ctx, scheduler.RemindKey(o.ID, o.ClientID),
		o.SubmissionTime.Add(-lead), HandlerRemind, remindArgs{OrderID: o.ID, UserID: o.ClientID})
	if err != nil {
		log.Error("cannot arm preorder reminder", err, "order_id", o.ID)
	}
}

func (s *OrderService) armEndReminders(ctx context.Context, orderID int64, finish time.Time) {
	log := s.mylog.Action("armEndReminders")
	s.disarmEndReminders(ctx, orderID)

	if at := finish.Add(-30 * time.Minute); at.After(time.Now()) {
		if err := s.Sched.Add(ctx, scheduler.Remind30Key(orderID), at,
			HandlerRemindEnd30, remindArgs{OrderID: orderID}); err != nil {
			log.Error("cannot arm 30min reminder", err, "order_id", orderID)
		}
	}
	if at := finish.Add(-10 * time.Minute); at.After(time.Now()) {
		if err := s.Sched.Add(ctx, scheduler.Remind10Key(orderID), at,
			HandlerRemindEnd10, remindArgs{OrderID: orderID}); err != nil {
			log.Error("cannot arm 10min reminder", err, "order_id", orderID)
		}
	}
}

func (s *OrderService) disarmEndReminders(ctx context.Context, orderID int64) {
	for _, k := range []scheduler.JobKey{scheduler.Remind30Key(orderID), scheduler.Remind10Key(orderID)} {
		if err := s.Sched.Remove(ctx, k); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
			s.mylog.Action("disarmEndReminders").Warn("cannot remove reminder", "job_id", k.String())
		}
	}
}

func validateSubmit(req dto.SubmitOrderDto) error {
	if req.ClientTgId <= 0 {
		return fmt.Errorf("invalid client id")
	}
	ft := model.FareType(req.FareType)
	switch ft {
	case model.FarePointToPoint, model.FareTransit, model.FarePreorderPointToPoint:
		if req.FinishAddress == "" {
			return fmt.Errorf("destination address is required")
		}
	case model.FareDriveAround, model.FarePreorderDriveAround:
		if req.DriveAroundHours <= 0 {
			return fmt.Errorf("drive-around hours must be positive")
		}
	default:
		return fmt.Errorf("unknown fare type %d", req.FareType)
	}
	if ft.IsPreorder() && req.SubmissionTime == "" {
		return fmt.Errorf("preorder requires a submission time")
	}
	if req.StartAddress == "" {
		return fmt.Errorf("start address is required")
	}
	if req.StartLatitude < -90 || req.StartLatitude > 90 {
		return fmt.Errorf("invalid latitude [-90, 90]")
	}
	if req.StartLongitude < -180 || req.StartLongitude > 180 {
		return fmt.Errorf("invalid longitude [-180, 180]")
	}
	return nil
}

func fmtCoords(lat, lon float64) string {
	return fmt.Sprintf("%f,%f", lat, lon)
}

func parseCoords(s string) (model.Coords, error) {
	var c model.Coords
	if _, err := fmt.Sscanf(s, "%f,%f", &c.Latitude, &c.Longitude); err != nil {
		return model.Coords{}, fmt.Errorf("malformed coords %q: %v", s, err)
	}
	return c, nil
}
