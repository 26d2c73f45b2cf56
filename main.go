package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/initya/InstaAutReel/engine"
	"github.com/initya/InstaAutReel/models"
	"github.com/initya/InstaAutReel/server"
	"github.com/initya/InstaAutReel/store"
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	cfg, err := models.LoadConfig(getConfigPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Create directories
	directories := []string{cfg.OutputDir, cfg.TempDir, "assets/audio", "assets/clips"}
	for _, dir := range directories {
		os.MkdirAll(dir, 0755)
	}

	pipeline := engine.NewPipeline(cfg, nil)

	// Register any clips already on disk
	if count, err := pipeline.Library.RegisterDir(context.Background(), "assets/clips", ""); err == nil && count > 0 {
		log.Printf("Registered %d clips from assets/clips", count)
	}

	var runStore server.RunStore
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoStore, err := store.Connect(ctx, uri, getMongoDB())
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoStore.Close(context.Background())
		runStore = mongoStore
		log.Println("Connected to MongoDB, run history enabled")
	}

	srv := server.New(cfg, pipeline, runStore)
	log.Fatal(srv.Run(getPort()))
}

func getConfigPath() string {
	if path := os.Getenv("REEL_CONFIG"); path != "" {
		return path
	}
	return "config.json"
}

func getMongoDB() string {
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		return db
	}
	return "reel_automation"
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8088"
}
