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

	"github.com/ariefcatur/go-realtime-shop/internal/config"
	"github.com/ariefcatur/go-realtime-shop/internal/httpx"
	kafkax "github.com/ariefcatur/go-realtime-shop/internal/kafka"
	"github.com/ariefcatur/go-realtime-shop/internal/memstore"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/postgres"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/ariefcatur/go-realtime-shop/internal/relay"
	"github.com/ariefcatur/go-realtime-shop/internal/telemetry"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(cfg.ServiceName, cfg.OtelTraces, nil)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	// Store
	var store orders.Store
	if cfg.Store == "memory" {
		log.Printf("using in-memory store; data is lost on exit")
		store = memstore.New()
	} else {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
		store = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Feed: through the Kafka log (relayed by cmd/relay) or straight to redis
	var (
		pub  orders.Publisher
		prod *kafkax.Producer
	)
	if cfg.FeedMode == "kafka" {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicShopChanges, 1024)
		prod.Start(ctx)
		pub = &relay.KafkaPublisher{Sink: prod, Service: cfg.ServiceName}
	} else {
		pub = redisx.NewBus(rdb)
	}

	mode, err := orders.ParseCompletionMode(cfg.CompletionPolicy)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	svc := orders.NewService(store, pub)
	svc.Location = cfg.Location()
	svc.Policy = orders.CompletionPolicy{Mode: mode, Lanes: cfg.BaristaConcurrency}
	svc.Retry.MaxAttempts = cfg.TxMaxAttempts

	router := httpx.NewRouter()
	sh := &httpx.ShopHandler{
		Svc:   svc,
		Cache: redisx.NewCache(rdb),
	}
	sh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("HTTP listening at %s (store=%s feed=%s policy=%s)", cfg.HTTPAddr, cfg.Store, cfg.FeedMode, mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // flush what is queued, then close the writer
		prod.WaitClosed()
	}
	cancel()
	if err := shutdownTracing(ctx2); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
