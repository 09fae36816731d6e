package handle

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

type OrderHandler struct {
	orderService ports.IOrderService
	log          mylogger.Logger
}

func NewOrderHandler(os ports.IOrderService, log mylogger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: os,
		log:          log,
	}
}

func (oh *OrderHandler) SubmitOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgID, err := authUserID(r)
		if err != nil {
			JsonError(w, http.StatusUnauthorized, err)
			return
		}
		req := dto.SubmitOrderDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.ClientTgId = tgID

		res, err := oh.orderService.SubmitOrder(r.Context(), req)
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}

		jsonResponse(w, http.StatusCreated, res)
	}
}

func (oh *OrderHandler) ReviewOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.ReviewOrderDto{OrderId: orderID, DriverTgId: tgID}

		if err := oh.orderService.ReviewOrder(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) DriverDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.DriverDecisionDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.DriverTgId = tgID

		switch r.PathValue("decision") {
		case "accept":
			err = oh.orderService.DriverAccept(r.Context(), req)
		case "reject":
			err = oh.orderService.DriverReject(r.Context(), req)
		default:
			JsonError(w, http.StatusNotFound, errors.New("unknown decision"))
			return
		}
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) ClientDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.ClientDecisionDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.ClientTgId = tgID

		switch r.PathValue("decision") {
		case "accept":
			err = oh.orderService.ClientAccept(r.Context(), req)
		case "reject":
			err = oh.orderService.ClientRejectDriver(r.Context(), req)
		default:
			JsonError(w, http.StatusNotFound, errors.New("unknown decision"))
			return
		}
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

// RejectReason takes the free-text follow-up the client types after
// turning a driver down.
func (oh *OrderHandler) RejectReason() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgID, err := authUserID(r)
		if err != nil {
			JsonError(w, http.StatusUnauthorized, err)
			return
		}
		req := dto.RejectReasonDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.ClientTgId = tgID

		if err := oh.orderService.ProvideRejectReason(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) MarkArrived() http.HandlerFunc {
	return oh.simpleTransition(func(r *http.Request, orderID, tgID int64) error {
		return oh.orderService.MarkArrived(r.Context(), orderID, tgID)
	})
}

func (oh *OrderHandler) StartTrip() http.HandlerFunc {
	return oh.simpleTransition(func(r *http.Request, orderID, tgID int64) error {
		return oh.orderService.StartTrip(r.Context(), orderID, tgID)
	})
}

func (oh *OrderHandler) FinishTrip() http.HandlerFunc {
	return oh.simpleTransition(func(r *http.Request, orderID, tgID int64) error {
		return oh.orderService.FinishTrip(r.Context(), orderID, tgID)
	})
}

func (oh *OrderHandler) simpleTransition(fn func(r *http.Request, orderID, tgID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		if err := fn(r, orderID, tgID); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) RequestExtension() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.ExtensionDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.UserTgId = tgID

		price, err := oh.orderService.RequestExtension(r.Context(), req)
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]int{"price": price})
	}
}

func (oh *OrderHandler) ConfirmExtension() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.ExtensionDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.UserTgId = tgID

		if err := oh.orderService.ConfirmExtension(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) ConfirmPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.PaymentDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.UserTgId = tgID

		if err := oh.orderService.ConfirmPayment(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) ApplyBonuses() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.PaymentDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.UserTgId = tgID

		if err := oh.orderService.ApplyBonuses(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) CancelOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, tgID, err := pathAndUser(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.CancelDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID
		req.UserTgId = tgID

		if err := oh.orderService.Cancel(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) RateTrip() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathOrderID(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.RateDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID

		if err := oh.orderService.RateTrip(r.Context(), r.PathValue("who"), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) SetReminderLead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathOrderID(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req := dto.ReminderPrefDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		req.OrderId = orderID

		if err := oh.orderService.SetReminderLead(r.Context(), req); err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, nil)
	}
}

func (oh *OrderHandler) OrderHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathOrderID(r)
		if err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		hist, err := oh.orderService.OrderHistory(r.Context(), orderID)
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, hist)
	}
}

// CurrentOrder returns the live order the authenticated user is in,
// whichever side of the trip they are on.
func (oh *OrderHandler) CurrentOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tgID, err := authUserID(r)
		if err != nil {
			JsonError(w, http.StatusUnauthorized, err)
			return
		}
		co, err := oh.orderService.CurrentOrderFor(r.Context(), tgID)
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, co)
	}
}

// UpcomingPreorders lists accepted preorders for the driver feed.
func (oh *OrderHandler) UpcomingPreorders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := oh.orderService.UpcomingPreorders(r.Context())
		if err != nil {
			JsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, list)
	}
}

func pathOrderID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("order_id"), 10, 64)
}

// authUserID is the caller identity the auth middleware verified. The
// body never decides who is acting.
func authUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.Header.Get("X-UserId"), 10, 64)
}

func pathAndUser(r *http.Request) (orderID, tgID int64, err error) {
	if orderID, err = pathOrderID(r); err != nil {
		return 0, 0, err
	}
	if tgID, err = authUserID(r); err != nil {
		return 0, 0, err
	}
	return orderID, tgID, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, myerrors.ErrOrderNotFound),
		errors.Is(err, myerrors.ErrDriverNotFound),
		errors.Is(err, myerrors.ErrClientNotFound),
		errors.Is(err, myerrors.ErrNoCurrentOrder):
		return http.StatusNotFound
	case errors.Is(err, myerrors.ErrWrongDriver),
		errors.Is(err, myerrors.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, myerrors.ErrStaleStatus),
		errors.Is(err, myerrors.ErrBadTransition),
		errors.Is(err, myerrors.ErrDriverBusy):
		return http.StatusConflict
	case errors.Is(err, myerrors.ErrNegativeBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, myerrors.ErrOracleDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
