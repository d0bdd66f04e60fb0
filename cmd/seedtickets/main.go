package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/database"
	"github.com/duelqueue/backend/internal/models"
)

// seedtickets populates the users table with synthetic players and
// opens a WAITING ticket for each, for exercising the Matchmaker
// Engine under load without a real client pool.
func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	count := 50
	if v := os.Getenv("SEED_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	area := os.Getenv("SEED_AREA")
	if area == "" {
		area = "default"
	}

	ctx := context.Background()
	for i := 0; i < count; i++ {
		rating := 800 + rand.Intn(800)
		preferences := models.Snapshot{
			Rating:      rating,
			Preferences: []float64{rand.Float64(), rand.Float64()},
		}

		var userID int64
		row := db.QueryRowxContext(ctx, `
			INSERT INTO users (external_id, rating, area, preferences)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, uuid.New().String(), rating, area, preferences)
		if err := row.Scan(&userID); err != nil {
			log.Fatalf("seed user %d failed: %v", i, err)
		}

		if _, err := db.ExecContext(ctx, `
			INSERT INTO mm_ticket (external_id, user_id, status, area, snapshot)
			VALUES ($1, $2, 'WAITING', $3, $4)
		`, uuid.New().String(), userID, area, preferences); err != nil {
			log.Fatalf("seed ticket %d failed: %v", i, err)
		}
	}

	log.Printf("seeded %d waiting tickets in area %q", count, area)
}
