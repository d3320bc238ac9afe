package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"github.com/rl-arena/rl-arena-matchmaker/internal/models"
	"github.com/rl-arena/rl-arena-matchmaker/internal/repository"
	"github.com/rl-arena/rl-arena-matchmaker/pkg/database"
)

// 로컬 개발용 기본 프로필
var demoProfiles = []*models.PlayerProfile{
	{ID: "alice", DisplayName: "Alice", Summary: "Weekend chess player", Rating: 1500, RatingDeviation: 50},
	{ID: "bob", DisplayName: "Bob", Summary: "Plays fast openings", Rating: 1550, RatingDeviation: 60},
	{ID: "carol", DisplayName: "Carol", Summary: "New to the club", Rating: 1200, RatingDeviation: 350},
	{ID: "dave", DisplayName: "Dave", Summary: "Tournament regular", Rating: 1900, RatingDeviation: 40},
}

func main() {
	file := flag.String("file", "", "JSON file with an array of player profiles (defaults to demo profiles)")
	flag.Parse()

	// .env 파일은 선택
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set in environment")
	}

	profiles := demoProfiles
	if *file != "" {
		loaded, err := loadProfiles(*file)
		if err != nil {
			log.Fatal("Failed to load profiles: ", err)
		}
		profiles = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database successfully!")

	repo := repository.NewProfileRepository(db)
	for _, p := range profiles {
		if err := matchmaking.ValidatePlayerID(p.ID); err != nil {
			log.Fatalf("Invalid profile %q: %v", p.ID, err)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			log.Fatalf("Failed to upsert profile %q: %v", p.ID, err)
		}
	}

	fmt.Printf("✅ %d player profiles upserted\n", len(profiles))

	stored, err := repo.List(ctx, 100)
	if err != nil {
		log.Fatal("Failed to list profiles: ", err)
	}

	fmt.Println("\n📋 Stored player profiles:")
	for _, p := range stored {
		fmt.Printf("  - %s: %s (rating %.0f ± %.0f)\n", p.ID, p.DisplayName, p.Rating, p.RatingDeviation)
	}
}

func loadProfiles(path string) ([]*models.PlayerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profiles []*models.PlayerProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return profiles, nil
}
