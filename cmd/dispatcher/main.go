package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-guesthouse-orders/internal/config"
	"github.com/ariefcatur/go-guesthouse-orders/internal/dispatch"
	kafkax "github.com/ariefcatur/go-guesthouse-orders/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadDispatcher()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &dispatch.Service{
		Redis:       rdb,
		Sink:        &dispatch.TicketWriter{W: os.Stdout},
		ServiceName: cfg.ServiceName,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Group, orders.TopicOrderEvents, cfg.Workers)
	log.Printf("dispatcher started: group=%s topic=%s workers=%d", cfg.Group, orders.TopicOrderEvents, cfg.Workers)
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Printf("consumer exit: %v", err)
	}
	log.Println("dispatcher stopped")
}
