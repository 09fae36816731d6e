package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/bm"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/crypto"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/db"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/notification"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/pricing"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driven/session"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driver/myhttp/handle"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driver/myhttp/middleware"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/adapters/driver/myhttp/ws"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/services"
	"github.com/Joletx42/trans-aggregator-bot/internal/scheduler"
)

// ErrServerClosed is what Run returns after a clean shutdown, so the
// caller can tell it apart from a listen failure.
var ErrServerClosed = errors.New("Server closed")

const WaitTime = 10

const (
	RoleClient = "CLIENT"
	RoleDriver = "DRIVER"
)

type Server struct {
	mux      *http.ServeMux
	cfg      *config.Config
	srv      *http.Server
	mylog    mylogger.Logger
	db       *db.DB
	mb       ports.IOrderBroker
	sched    *scheduler.Scheduler
	sessions *session.Store
	hub      *ws.Dispatcher
	ctx      context.Context
	appCtx   context.Context
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	s := &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
		mux:    http.NewServeMux(),
	}

	return s
}

// Run initializes routes and starts listening. It returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	// Initialize database connection
	db, err := db.New(s.ctx, s.cfg.DB, mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	mylog.Info("Successful database connection")

	// Initialize RabbitMQ connection
	mb, err := bm.New(s.appCtx, *s.cfg.RabbitMq, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mb = mb
	mylog.Info("Successful message broker connection")

	// Initialize redis session store
	sessions, err := session.New(s.ctx, *s.cfg.Redis, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.sessions = sessions
	mylog.Info("Successful session store connection")

	// Configure routes and handlers
	if err := s.Configure(); err != nil {
		return err
	}

	s.sched.Start(s.appCtx)
	mylog.Info("scheduler is running")

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.OrderServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog = mylog.WithGroup("details").With("port", s.cfg.Srv.OrderServicePort)

	mylog.Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down HTTP server...")

	if s.sched != nil {
		s.sched.Stop()
		s.mylog.Info("Scheduler stopped")
	}

	if s.hub != nil {
		s.hub.Shutdown(ctx)
	}

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.mb != nil {
		if err := s.mb.Close(); err != nil {
			s.mylog.Error("Failed to close message broker", err)
		}
	}

	// closing the broker ends the ack listener's delivery channel
	s.wg.Wait()

	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.mylog.Error("Failed to close session store", err)
		}
	}

	if s.db != nil {
		s.db.Close()
		s.mylog.Info("Database closed")
	}

	s.mylog.Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- ErrServerClosed
		}
	}()

	select {
	case <-s.ctx.Done():
		return ErrServerClosed
	case err := <-errCh:
		return err
	}
}

// Configure wires repositories, the scheduler and the order service,
// then registers routes.
func (s *Server) Configure() error {
	// Repositories
	orderRepo := db.NewOrderRepo(s.db)
	partyRepo := db.NewPartyRepo(s.db)
	jobStore := db.NewJobStore(s.db)

	// Driven adapters
	notifier := notification.New(s.mylog, s.mb)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := notifier.ListenAcks(s.appCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.mylog.Error("ack listener stopped", err)
		}
	}()
	oracle, err := pricing.New(*s.cfg.Maps, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to create pricing oracle: %w", err)
	}
	sealer, err := crypto.New(*s.cfg.Crypto)
	if err != nil {
		return fmt.Errorf("failed to create sealer: %w", err)
	}

	s.sched = scheduler.New(jobStore, s.mylog)
	s.hub = ws.NewDispatcher(s.mylog)

	// services
	orderService := services.NewOrderService(s.appCtx, s.mylog, *s.cfg.Fare, s.cfg.Srv.DispatchChannel,
		orderRepo, partyRepo, notifier, s.sched, oracle, s.sessions, sealer, s.hub)
	orderService.RegisterJobHandlers(s.sched)

	// handlers
	orderHandler := handle.NewOrderHandler(orderService, s.mylog)

	authMiddleware := middleware.NewAuthMiddleware(s.cfg.Srv.AccessSecret)
	anyParty := authMiddleware.Wrap()
	clientOnly := authMiddleware.Wrap(RoleClient)
	driverOnly := authMiddleware.Wrap(RoleDriver)

	// Register routes
	s.mux.Handle("POST /orders", clientOnly(orderHandler.SubmitOrder()))
	s.mux.Handle("POST /orders/{order_id}/review", driverOnly(orderHandler.ReviewOrder()))
	s.mux.Handle("POST /orders/{order_id}/driver/{decision}", driverOnly(orderHandler.DriverDecision()))
	s.mux.Handle("POST /orders/{order_id}/client/{decision}", clientOnly(orderHandler.ClientDecision()))
	s.mux.Handle("POST /orders/{order_id}/arrived", driverOnly(orderHandler.MarkArrived()))
	s.mux.Handle("POST /orders/{order_id}/start", driverOnly(orderHandler.StartTrip()))
	s.mux.Handle("POST /orders/{order_id}/extension/quote", anyParty(orderHandler.RequestExtension()))
	s.mux.Handle("POST /orders/{order_id}/extension", clientOnly(orderHandler.ConfirmExtension()))
	s.mux.Handle("POST /orders/{order_id}/finish", driverOnly(orderHandler.FinishTrip()))
	s.mux.Handle("POST /orders/{order_id}/payment", driverOnly(orderHandler.ConfirmPayment()))
	s.mux.Handle("POST /orders/{order_id}/bonuses", clientOnly(orderHandler.ApplyBonuses()))
	s.mux.Handle("POST /orders/{order_id}/cancel", anyParty(orderHandler.CancelOrder()))
	s.mux.Handle("POST /orders/{order_id}/rate/{who}", anyParty(orderHandler.RateTrip()))
	s.mux.Handle("POST /orders/{order_id}/reminder", clientOnly(orderHandler.SetReminderLead()))
	s.mux.Handle("POST /orders/reject-reason", clientOnly(orderHandler.RejectReason()))
	s.mux.Handle("GET /orders/{order_id}/history", anyParty(orderHandler.OrderHistory()))
	s.mux.Handle("GET /orders/current", anyParty(orderHandler.CurrentOrder()))
	s.mux.Handle("GET /orders/preorders", driverOnly(orderHandler.UpcomingPreorders()))

	// websocket routes
	s.mux.Handle("/ws/drivers/{driver_id}", s.hub.WsHandler())

	return nil
}
