package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/doodlemind/doodle.ai/db"
	"github.com/doodlemind/doodle.ai/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres.BuildDSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	repo := db.NewPersonaRepository(pool)
	if err := repo.SeedRoster(ctx); err != nil {
		log.Fatalf("seed personas: %v", err)
	}

	roster, err := repo.LoadRoster(ctx)
	if err != nil {
		log.Fatalf("verify roster: %v", err)
	}

	fmt.Printf("seeded %d personas:\n", len(roster))
	for _, p := range roster {
		fmt.Printf("  %-12s %s (%s) level %d cost %d\n", p.ID, p.Name, p.TypeCode, p.Level, p.Cost)
	}
}
