package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/nocvalidator/backend/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Create the database if needed, then connect
	database.EnsureDatabase()
	database.Connect()

	// Run migrations
	log.Println("Running database migrations...")
	database.AutoMigrate()

	log.Println("✅ Database migrations completed successfully!")
}
