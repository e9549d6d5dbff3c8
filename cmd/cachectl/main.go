package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cachectl"})

	_ = godotenv.Load()

	model := flag.String("model", "", "cached model to clear (categories|shops|listings); empty clears all")
	flag.Parse()

	if *model != "" && !slices.Contains(catalog.CachedModels, *model) {
		fmt.Fprintf(os.Stderr, "unknown model %q, expected one of %v\n", *model, catalog.CachedModels)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	cache, err := catalog.NewCache(redisClient, cfg.Cache, logg)
	if err != nil {
		logg.Error(ctx, "failed to build cache", err)
		os.Exit(1)
	}

	var models []string
	if *model != "" {
		models = []string{*model}
	}
	n, err := cache.Invalidate(ctx, models...)
	if err != nil {
		logg.Error(ctx, "cache invalidation failed", err)
		os.Exit(1)
	}
	fmt.Printf("cleared %d cached entries\n", n)
}
