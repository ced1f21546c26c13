// Command seed inserts fake posts for local development.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"postboard/internal/config"
	"postboard/internal/database"
	"postboard/internal/repository"
	"postboard/internal/seed"
	"postboard/internal/service"
	"postboard/internal/tags"
)

func main() {
	numPosts := flag.Int("posts", 50, "Number of posts to create")
	seedValue := flag.Int64("seed", 0, "Random seed for content and tags (0 = random)")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d posts\n", *numPosts)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	gateway, err := database.NewGateway(cfg)
	if err != nil {
		log.Fatalf("Invalid database configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := gateway.Open(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = gateway.Close() }()

	picker := tags.NewPicker(nil)
	if *seedValue != 0 {
		picker = tags.NewSeededPicker(*seedValue)
	}
	svc := service.NewPostService(repository.NewPostRepository(gateway), picker, nil)

	posts, err := seed.NewFactory(svc, *seedValue).SeedPosts(ctx, *numPosts)
	if err != nil {
		log.Fatalf("Seeding stopped after %d posts: %v", len(posts), err)
	}
	log.Printf("All done! Created %d posts.", len(posts))
}
