package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/config"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/ariefcatur/go-realtime-shop/internal/syncer"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.ShopID == "" {
		log.Fatal("SHOP_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	replica := syncer.NewReplica(&syncer.RemoteSource{
		BaseURL: cfg.APIURL,
		ShopID:  cfg.ShopID,
		Role:    "user",
		Bus:     redisx.NewBus(rdb),
	})

	done := make(chan error, 1)
	go func() { done <- replica.Run(ctx) }()

	tick := time.NewTicker(cfg.DisplayInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("replica: %v", err)
			}
			return
		case <-tick.C:
			st := replica.State()
			if st.SyncedAt.IsZero() {
				continue
			}
			os.Stdout.WriteString("\033[H\033[2J")
			render(os.Stdout, st, time.Now())
		}
	}
}
