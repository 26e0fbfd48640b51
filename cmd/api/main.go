package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/config"
	"github.com/ariefcatur/go-guesthouse-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-guesthouse-orders/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/postgres"
	"github.com/ariefcatur/go-guesthouse-orders/internal/realtime"
	"github.com/ariefcatur/go-guesthouse-orders/internal/redisx"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// Store
	var store orders.Store
	switch cfg.Store {
	case "memory":
		store = orders.NewMemoryStore()
		log.Println("store: in-memory")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		store = &orders.Repo{DB: db}
		log.Println("store: postgres")
	}

	bus := orders.NewBus()

	// Redis snapshot cache (optional)
	var cache *redisx.SnapshotCache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		cache = redisx.NewSnapshotCache(rdb, cfg.SnapshotTTL, 1024)
		bus.Subscribe(cache.Observe)
		g.Go(func() error { return cache.Run(gctx) })
	}

	// Kafka relay (optional)
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024)
		prod.Start(gctx)
		relay := &kafkax.Relay{Producer: prod, Service: cfg.ServiceName}
		bus.Subscribe(relay.Observe)
	}

	rt := realtime.NewServer(bus, cfg.WSSendBuffer)
	router := httpx.NewRouter()
	router.Handle("/ws", rt)
	oh := &httpx.OrdersHandler{
		Store:        orders.NewNotifyingStore(store, bus),
		Cache:        cache,
		StrictStatus: cfg.StrictStatus,
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.Instrument(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		rt.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("api exit: %v", err)
	}
	if prod != nil {
		prod.WaitClosed()
	}
}
