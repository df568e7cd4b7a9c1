package config

import (
	"log"
	"os"
)

type Config struct {
	DatabaseURL  string
	Port         string
	AdminKey     string
	ResendAPIKey string
	EmailFrom    string
	BBRUsername  string
	BBRPassword  string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	cfg := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Port:         port,
		AdminKey:     os.Getenv("ADMIN_KEY"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailFrom:    os.Getenv("EMAIL_FROM"),
		BBRUsername:  os.Getenv("BBR_USERNAME"),
		BBRPassword:  os.Getenv("BBR_PASSWORD"),
	}

	if cfg.AdminKey == "" {
		log.Print("warning: ADMIN_KEY is not set; admin endpoints will reject all requests")
	}
	if cfg.BBRUsername == "" || cfg.BBRPassword == "" {
		log.Print("warning: BBR_USERNAME/BBR_PASSWORD not set; building lookups will be skipped")
	}

	return cfg
}
