package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/LibraryBookingSystem/booking-service/internal/client"
	"github.com/LibraryBookingSystem/booking-service/internal/config"
	"github.com/LibraryBookingSystem/booking-service/internal/database"
	"github.com/LibraryBookingSystem/booking-service/internal/handler"
	"github.com/LibraryBookingSystem/booking-service/internal/queue"
	"github.com/LibraryBookingSystem/booking-service/internal/repository"
	"github.com/LibraryBookingSystem/booking-service/internal/router"
	"github.com/LibraryBookingSystem/booking-service/internal/scheduler"
	"github.com/LibraryBookingSystem/booking-service/internal/service"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	store := service.NewSQLStore(repository.NewBookingRepo(db))

	policy := client.NewPolicy(cfg.PolicyURL)
	users := client.NewUsers(cfg.UserServiceURL)
	catalog := client.NewCatalog(cfg.CatalogURL)
	events := queue.NewPublisher(queue.BrokerURL())

	sched := scheduler.NewCompletion(cfg.SchedulerWorkers, time.Now)
	defer sched.Close()

	svc := service.NewBookingService(store, policy, users, catalog, events, sched, time.Now)

	// The scheduler calls back into the engine to finalize bookings, so
	// it is wired after construction.
	sched.Start(svc)

	// Re-arm a completion timer for every booking that was live when the
	// previous process stopped, before the API starts taking traffic.
	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sched.RecoverOnStartup(recoverCtx, store); err != nil {
		cancel()
		log.Fatalf("completion recovery failed: %v", err)
	}
	cancel()
	log.Printf("completion scheduler recovered %d pending booking(s)", sched.Pending())

	sweep := scheduler.NewSweep(cfg.SweepInterval, svc)
	go sweep.Run()
	defer sweep.Stop()

	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	e := router.New(cfg, handler.NewBookingHandler(svc), rdb)
	log.Printf("booking service listening on :%s (env=%s)", cfg.Port, cfg.Env)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
