package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	store, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close(ctx)

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	fmt.Printf("%s schema ready at %s\n", cfg.StoreDriver, time.Now().Format(time.RFC3339))
}
