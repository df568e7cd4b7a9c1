package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/andreasskyt/vinduespudser-app/internal/config"
	"github.com/andreasskyt/vinduespudser-app/internal/db"
	"github.com/andreasskyt/vinduespudser-app/internal/email"
	"github.com/andreasskyt/vinduespudser-app/internal/notify"
	"github.com/andreasskyt/vinduespudser-app/internal/property"
	"github.com/andreasskyt/vinduespudser-app/internal/server"
)

func main() {
	cfg := config.Load()

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("DATABASE_URL not set. Please export DATABASE_URL before running.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()
	// Verify connectivity proactively
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	h := server.New(pool, server.Options{
		AdminKey: cfg.AdminKey,
		Property: property.NewClient(cfg.BBRUsername, cfg.BBRPassword),
		Email:    email.NewSender(cfg.ResendAPIKey, cfg.EmailFrom),
		Notifier: notify.New(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("api listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}
