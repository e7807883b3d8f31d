package main

import (
	"log"

	"memberpass-be/internal/config"
	"memberpass-be/internal/model"
	"memberpass-be/pkg/database"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.Database.Connection, cfg.Database.SqlitePath)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	if cfg.Database.Connection != "" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
			log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
		}
	}

	models := model.All()
	log.Printf("Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Success: Database migration completed.")
}
