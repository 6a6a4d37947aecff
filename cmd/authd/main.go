package main

import (
	"log"

	"github.com/budgetbuddy/authd/internal/auth/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
