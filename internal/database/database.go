package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/nocvalidator/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// EnsureDatabase creates the target database when it does not exist yet.
// It connects to the maintenance database with the same credentials, so a
// fresh Postgres instance works without manual setup.
func EnsureDatabase() {
	name := os.Getenv("DB_NAME")
	if name == "" {
		log.Fatal("DB_NAME environment variable is required")
	}

	adminDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=postgres port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
	)

	admin, err := sql.Open("postgres", adminDSN)
	if err != nil {
		log.Fatal("Failed to connect to postgres:", err)
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		log.Fatal("Failed to check database existence:", err)
	}

	if !exists {
		// CREATE DATABASE cannot be parameterized; the name comes from
		// trusted configuration.
		if _, err := admin.Exec(fmt.Sprintf("CREATE DATABASE %q", name)); err != nil {
			log.Fatal("Failed to create database:", err)
		}
		fmt.Printf("Database %s created\n", name)
	}
}

func Connect() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_SSLMODE"),
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("Database connected successfully")
}

func AutoMigrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.ValidationRecord{},
	)

	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("Database migrated successfully")
}
