package services

import (
	"context"
	"sync"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/dto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

// In-memory doubles for every driven port. They enforce the same
// error contracts as the real adapters so the service under test
// cannot tell the difference.

type fakeOrderRepo struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]model.Order
	current map[int64]model.CurrentOrder
	history map[int64][]model.HistoryEntry
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		nextID:  1,
		orders:  make(map[int64]model.Order),
		current: make(map[int64]model.CurrentOrder),
		history: make(map[int64][]model.HistoryEntry),
	}
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, o model.Order) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = f.nextID
	f.nextID++
	f.orders[o.ID] = o
	return o.ID, nil
}

func (f *fakeOrderRepo) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.IsDeleted {
		return model.Order{}, myerrors.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) SetStatus(ctx context.Context, orderID int64, from, to model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return myerrors.ErrStaleStatus
	}
	o.Status = to
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrderRepo) AddToPrice(ctx context.Context, orderID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.Price += delta
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrderRepo) SetPaymentWithBonuses(ctx context.Context, orderID int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.PaymentWithBonuses = amount
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrderRepo) SoftDelete(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	o.IsDeleted = true
	f.orders[orderID] = o
	return nil
}

func (f *fakeOrderRepo) CreateCurrentOrder(ctx context.Context, co model.CurrentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[co.OrderID] = co
	return nil
}

func (f *fakeOrderRepo) GetCurrentOrder(ctx context.Context, orderID int64) (model.CurrentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	co, ok := f.current[orderID]
	if !ok {
		return model.CurrentOrder{}, myerrors.ErrNoCurrentOrder
	}
	return co, nil
}

func (f *fakeOrderRepo) GetCurrentOrderByTgID(ctx context.Context, tgID int64) (model.CurrentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, co := range f.current {
		if co.ClientTgID == tgID || co.DriverTgID == tgID {
			return co, nil
		}
	}
	return model.CurrentOrder{}, myerrors.ErrNoCurrentOrder
}

func (f *fakeOrderRepo) UpdateCurrentOrderTimes(ctx context.Context, co model.CurrentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.current[co.OrderID]; !ok {
		return myerrors.ErrNoCurrentOrder
	}
	f.current[co.OrderID] = co
	return nil
}

func (f *fakeOrderRepo) DeleteCurrentOrder(ctx context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.current, orderID)
	return nil
}

func (f *fakeOrderRepo) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.history[e.OrderID]) + 1)
	f.history[e.OrderID] = append(f.history[e.OrderID], e)
	return nil
}

func (f *fakeOrderRepo) History(ctx context.Context, orderID int64) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.HistoryEntry(nil), f.history[orderID]...), nil
}

func (f *fakeOrderRepo) ActivePreorders(ctx context.Context, now time.Time) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Order
	for _, o := range f.orders {
		if o.Status == model.StatusPreorderAccepted && o.SubmissionTime.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakePartyRepo struct {
	mu      sync.Mutex
	drivers map[int64]model.Driver
	clients map[int64]model.Client
}

func newFakePartyRepo() *fakePartyRepo {
	return &fakePartyRepo{
		drivers: make(map[int64]model.Driver),
		clients: make(map[int64]model.Client),
	}
}

func (f *fakePartyRepo) GetDriver(ctx context.Context, driverID int64) (model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return model.Driver{}, myerrors.ErrDriverNotFound
	}
	return d, nil
}

func (f *fakePartyRepo) GetDriverByTgID(ctx context.Context, tgID int64) (model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drivers {
		if d.TgID == tgID {
			return d, nil
		}
	}
	return model.Driver{}, myerrors.ErrDriverNotFound
}

func (f *fakePartyRepo) GetClient(ctx context.Context, clientID int64) (model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		return model.Client{}, myerrors.ErrClientNotFound
	}
	return c, nil
}

func (f *fakePartyRepo) GetClientByTgID(ctx context.Context, tgID int64) (model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.TgID == tgID {
			return c, nil
		}
	}
	return model.Client{}, myerrors.ErrClientNotFound
}

func (f *fakePartyRepo) SetDriverShiftStatus(ctx context.Context, driverID int64, st model.DriverShiftStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return myerrors.ErrDriverNotFound
	}
	d.ShiftStatus = st
	f.drivers[driverID] = d
	return nil
}

func (f *fakePartyRepo) AddToWallet(ctx context.Context, driverID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drivers[driverID]
	if !ok {
		return myerrors.ErrDriverNotFound
	}
	d.Wallet += delta
	f.drivers[driverID] = d
	return nil
}

func (f *fakePartyRepo) AddBonuses(ctx context.Context, clientID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok || c.Bonuses+delta < 0 {
		return myerrors.ErrClientNotFound
	}
	c.Bonuses += delta
	f.clients[clientID] = c
	return nil
}

func (f *fakePartyRepo) BumpDriverTrips(ctx context.Context, driverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.drivers[driverID]
	d.TripsCount++
	f.drivers[driverID] = d
	return nil
}

func (f *fakePartyRepo) BumpClientTrips(ctx context.Context, clientID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.clients[clientID]
	c.TripsCount++
	f.clients[clientID] = c
	return nil
}

func (f *fakePartyRepo) RateDriver(ctx context.Context, driverID int64, stars int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.drivers[driverID]
	d.Rating = float64(stars)
	f.drivers[driverID] = d
	return nil
}

func (f *fakePartyRepo) RateClient(ctx context.Context, clientID int64, stars int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.clients[clientID]
	c.Rating = float64(stars)
	f.clients[clientID] = c
	return nil
}

// raceOrderRepo flips the stored status once, right after the first
// read, imitating a concurrent transition landing on another
// connection between a read and its compare-and-set.
type raceOrderRepo struct {
	*fakeOrderRepo
	once   sync.Once
	flipTo model.Status
}

func (r *raceOrderRepo) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	o, err := r.fakeOrderRepo.GetOrder(ctx, orderID)
	if err != nil {
		return o, err
	}
	r.once.Do(func() {
		r.fakeOrderRepo.mu.Lock()
		stored := r.fakeOrderRepo.orders[orderID]
		stored.Status = r.flipTo
		r.fakeOrderRepo.orders[orderID] = stored
		r.fakeOrderRepo.mu.Unlock()
	})
	return o, nil
}

type sentNotice struct {
	UserID  int64
	Channel string
	Text    string
}

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []sentNotice
	updated   []sentNotice
	retracted []model.MessageHandle
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, text string) (model.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{UserID: userID, Text: text})
	return model.MessageHandle{ID: "direct", UserID: userID}, nil
}

func (f *fakeNotifier) Announce(ctx context.Context, channel, text string, orderID int64) (model.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{Channel: channel, Text: text})
	return model.MessageHandle{ID: "announce", Channel: channel}, nil
}

func (f *fakeNotifier) Update(ctx context.Context, h model.MessageHandle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, sentNotice{UserID: h.UserID, Channel: h.Channel, Text: text})
	return nil
}

func (f *fakeNotifier) Retract(ctx context.Context, h model.MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retracted = append(f.retracted, h)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updated)
}

func (f *fakeNotifier) sentTo(userID int64) []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotice
	for _, n := range f.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fakeOracle struct {
	quote ports.Quote
	err   error
}

func (f *fakeOracle) Route(ctx context.Context, from, to model.Coords, fare model.FareType) (ports.Quote, error) {
	if f.err != nil {
		return ports.Quote{}, f.err
	}
	return f.quote, nil
}

func (f *fakeOracle) Travel(ctx context.Context, from, to model.Coords) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.quote.Duration, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[int64]ports.Session
	cleared  []int64
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[int64]ports.Session)}
}

func (f *fakeSessions) Get(ctx context.Context, userID int64) (ports.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[userID]; ok {
		return s, nil
	}
	return ports.Session{UserID: userID}, nil
}

func (f *fakeSessions) Put(ctx context.Context, s ports.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.UserID] = s
	return nil
}

func (f *fakeSessions) Clear(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userID)
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeSessions) state(userID int64) ports.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[userID].State
}

type plainSealer struct{}

func (plainSealer) Seal(plain string) (string, error) { return "sealed:" + plain, nil }

func (plainSealer) Open(sealed string) (string, error) {
	return sealed[len("sealed:"):], nil
}

type fakeHub struct {
	mu     sync.Mutex
	direct []dto.OrderStatusUpdate
	bcast  []dto.OrderStatusUpdate
}

func (f *fakeHub) WriteToDriver(driverID int64, msg dto.OrderStatusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, msg)
}

func (f *fakeHub) Broadcast(msg dto.OrderStatusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcast = append(f.bcast, msg)
}

var _ ports.IOrderRepo = (*fakeOrderRepo)(nil)
var _ ports.IPartyRepo = (*fakePartyRepo)(nil)
var _ ports.INotifier = (*fakeNotifier)(nil)
var _ ports.IPricingOracle = (*fakeOracle)(nil)
var _ ports.ISessionStore = (*fakeSessions)(nil)
var _ ports.ISealer = plainSealer{}
var _ ports.IDispatchHub = (*fakeHub)(nil)
var _ ports.IScheduler = (*scheduler.Scheduler)(nil)
