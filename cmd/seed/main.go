// Command seed loads a shop and its products from a YAML catalog.
//
//	seed -f catalog.yaml
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/catalog"
	"github.com/ariefcatur/go-realtime-shop/internal/config"
	kafkax "github.com/ariefcatur/go-realtime-shop/internal/kafka"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/postgres"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/ariefcatur/go-realtime-shop/internal/relay"
	"github.com/joho/godotenv"
)

func main() {
	path := flag.String("f", "catalog.yaml", "catalog file")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Store != "postgres" {
		log.Fatalf("seed needs STORE=postgres, got %q", cfg.Store)
	}

	cat, err := catalog.Load(*path)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Live displays pick the new catalog up through the feed.
	var pub orders.Publisher
	if cfg.FeedMode == "kafka" {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicShopChanges, 256)
		prod.Start(ctx)
		defer prod.WaitClosed()
		defer prod.Close()
		pub = &relay.KafkaPublisher{Sink: prod, Service: cfg.ServiceName + "-seed"}
	} else {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		pub = redisx.NewBus(rdb)
	}

	svc := orders.NewService(&postgres.Store{DB: db}, pub)
	svc.Location = cfg.Location()
	svc.Retry.MaxAttempts = cfg.TxMaxAttempts

	if err := cat.Apply(ctx, svc); err != nil {
		log.Fatalf("apply %s: %v", *path, err)
	}
	log.Printf("seeded shop %s with %d products", cat.Shop.ID, len(cat.Products))
}
