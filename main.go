package main

import (
	"log"

	"sales-forecast/app"
	"sales-forecast/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()

	// Create and start app
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}
