package main

import (
	"context"
	"log"

	"github.com/shestoi/paybridge/internal/app"
	"github.com/shestoi/paybridge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	// блокируется до graceful shutdown
	if err := application.Run(); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}
