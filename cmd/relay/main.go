package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-shop/internal/config"
	kafkax "github.com/ariefcatur/go-realtime-shop/internal/kafka"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/ariefcatur/go-realtime-shop/internal/relay"
	"github.com/ariefcatur/go-realtime-shop/internal/telemetry"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(cfg.ServiceName+"-relay", cfg.OtelTraces, nil)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &relay.Service{
		Bus:         redisx.NewBus(rdb),
		Cache:       redisx.NewCache(rdb),
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-relay",
	}

	workers := max(cfg.RelayWorkers, 1)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.RelayGroup, orders.TopicShopChanges, workers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("relay started: group=%s topic=%s workers=%d", cfg.RelayGroup, orders.TopicShopChanges, workers)
		if err := cons.Start(ctx, svc.HandleBatch); err != nil && ctx.Err() == nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down relay...")
	cancel()
	<-done
}
