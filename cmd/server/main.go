package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/database"
	"github.com/playora/lounge-reservation/internal/handler"
	"github.com/playora/lounge-reservation/internal/lock"
	"github.com/playora/lounge-reservation/internal/notify"
	"github.com/playora/lounge-reservation/internal/repository"
	"github.com/playora/lounge-reservation/internal/router"
	"github.com/playora/lounge-reservation/internal/scheduler"
	"github.com/playora/lounge-reservation/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	bookingCfg := config.LoadBookingConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	// The booking lock and the scheduler's tick locks live in Redis;
	// without it double-booking protection is gone, so startup fails.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatal("redis unavailable: the booking lock requires it")
	}
	defer rdb.Close()

	locker := lock.New(rdb)
	events := notify.NewPublisher()

	activities := repository.NewActivityRepo(db)
	units := repository.NewUnitRepo(db)
	reservations := repository.NewReservationRepo(db)
	sessions := repository.NewSessionRepo(db)
	queue := repository.NewWaitingQueueRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	sessionSvc := service.NewSessionService(activities, units, sessions, locker, events, bookingCfg)
	queueSvc := service.NewQueueService(activities, units, reservations, sessions, queue, locker, events, bookingCfg)
	sessionSvc.SetUnitFreedHook(func(ctx context.Context, activityID uint64) {
		queueSvc.ProcessQueue(ctx, activityID)
	})
	reservationSvc := service.NewReservationService(activities, units, reservations, sessions,
		queue, locker, events, bookingCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.New(sessions, reservations, queue, sessionSvc, reservationSvc, queueSvc, locker, events, bookingCfg).Start(ctx)

	go func() {
		if err := notify.StartConsumer(); err != nil {
			log.Printf("[NOTIFY] consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		Cfg:          cfg,
		Redis:        rdb,
		Auth:         handler.NewAuthHandler(users, tokens, cfg),
		Activities:   handler.NewActivityHandler(activities, units, queueSvc, events),
		Reservations: handler.NewReservationHandler(reservationSvc),
		Sessions:     handler.NewSessionHandler(sessionSvc),
		Queue:        handler.NewQueueHandler(queueSvc),
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
