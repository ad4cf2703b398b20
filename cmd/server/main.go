package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/bus-ticket-booking/internal/config"
	"github.com/iliyamo/bus-ticket-booking/internal/database"
	"github.com/iliyamo/bus-ticket-booking/internal/handler"
	"github.com/iliyamo/bus-ticket-booking/internal/mailer"
	"github.com/iliyamo/bus-ticket-booking/internal/maintenance"
	"github.com/iliyamo/bus-ticket-booking/internal/notify"
	"github.com/iliyamo/bus-ticket-booking/internal/queue"
	"github.com/iliyamo/bus-ticket-booking/internal/repository"
	"github.com/iliyamo/bus-ticket-booking/internal/router"
	"github.com/iliyamo/bus-ticket-booking/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.SetupLogger(cfg.Env)

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis backs rate limiting, the response cache and maintenance mode;
	// without it those features pass requests through.
	rdb := config.NewRedisClient(config.LoadRedis())
	if rdb == nil {
		log.Warn("redis unavailable, running without rate limit, cache and maintenance mode")
	} else {
		defer rdb.Close()
	}

	seats := repository.NewSeatRepo(db)
	locations := repository.NewLocationRepo(db)
	trips := repository.NewTripRepo(db)
	ledger := repository.NewAvailabilityRepo(db)
	bookings := repository.NewBookingRepo(db)

	svc := service.NewBookingService(db, trips, seats, ledger, bookings, cfg.Booking, queue.NewPublisher(cfg.AMQPURL))
	svc.Log = log
	store := maintenance.NewStore(rdb)

	e := router.New(router.Deps{
		Log:         log,
		JWTSecret:   cfg.JWTSecret,
		Redis:       rdb,
		RateLimit:   config.LoadRateLimitConfig(),
		Cache:       config.LoadCacheConfig(),
		Maintenance: store,

		Auth:    handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), log),
		Public:  handler.NewPublicHandler(svc, locations, log),
		Booking: handler.NewBookingHandler(svc, cfg.Company, log),
		Admin: &handler.AdminHandler{
			Locations: locations,
			Companies: repository.NewCompanyRepo(db),
			Layouts:   repository.NewSeatLayoutRepo(db),
			Buses:     repository.NewBusRepo(db, seats),
			Seats:     seats,
			Routes:    repository.NewRouteRepo(db),
			Trips:     trips,
			Ledger:    ledger,
			Bookings:  bookings,
			Svc:       svc,
			Log:       log,
		},
		MaintenanceH: &handler.MaintenanceHandler{Store: store},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Notifier {
		n := notify.New(svc, mailer.New(cfg.Mail), cfg.Company, cfg.Booking)
		n.Log = log
		consumer := queue.NewConsumer(cfg.AMQPURL, n.Handle)
		consumer.Log = log
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("booking consumer stopped", "err", err)
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
	log.Info("server stopped")
}
