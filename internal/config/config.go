package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/models"
)

type Config struct {
	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string

	REDIS_ADDR     string
	REDIS_PASSWORD string

	JWT_SECRET     string
	REFRESH_SECRET string
	KAFKA_ADDRESS  string

	PUBLIC_BASE_URL string
	LOG_LEVEL       string

	VIVA_CLIENT_ID     string
	VIVA_CLIENT_SECRET string
	VIVA_SOURCE_CODE   string
	VIVA_WEBHOOK_KEY   string

	ACS_API_KEY          string
	ACS_COMPANY_ID       string
	ACS_COMPANY_PASSWORD string
	ACS_USER_ID          string
	ACS_USER_PASSWORD    string

	GENIKI_USERNAME        string
	GENIKI_PASSWORD        string
	GENIKI_APPLICATION_KEY string

	GOOGLE_CLIENT_ID     string
	GOOGLE_CLIENT_SECRET string
	GOOGLE_REDIRECT_URL  string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),

		REDIS_ADDR:     os.Getenv("REDIS_ADDR"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),

		JWT_SECRET:     os.Getenv("JWT_SECRET"),
		REFRESH_SECRET: os.Getenv("REFRESH_SECRET"),
		KAFKA_ADDRESS:  os.Getenv("KAFKA_ADDRESS"),

		PUBLIC_BASE_URL: os.Getenv("PUBLIC_BASE_URL"),
		LOG_LEVEL:       os.Getenv("LOG_LEVEL"),

		VIVA_CLIENT_ID:     os.Getenv("VIVA_CLIENT_ID"),
		VIVA_CLIENT_SECRET: os.Getenv("VIVA_CLIENT_SECRET"),
		VIVA_SOURCE_CODE:   os.Getenv("VIVA_SOURCE_CODE"),
		VIVA_WEBHOOK_KEY:   os.Getenv("VIVA_WEBHOOK_KEY"),

		ACS_API_KEY:          os.Getenv("ACS_API_KEY"),
		ACS_COMPANY_ID:       os.Getenv("ACS_COMPANY_ID"),
		ACS_COMPANY_PASSWORD: os.Getenv("ACS_COMPANY_PASSWORD"),
		ACS_USER_ID:          os.Getenv("ACS_USER_ID"),
		ACS_USER_PASSWORD:    os.Getenv("ACS_USER_PASSWORD"),

		GENIKI_USERNAME:        os.Getenv("GENIKI_USERNAME"),
		GENIKI_PASSWORD:        os.Getenv("GENIKI_PASSWORD"),
		GENIKI_APPLICATION_KEY: os.Getenv("GENIKI_APPLICATION_KEY"),

		GOOGLE_CLIENT_ID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GOOGLE_CLIENT_SECRET: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GOOGLE_REDIRECT_URL:  os.Getenv("GOOGLE_REDIRECT_URL"),
	}

	return config, nil
}

func InitDB() (*gorm.DB, error) {
	configuration, _ := LoadConfig()

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		configuration.DB_USER,
		configuration.DB_PASSWORD,
		configuration.DB_HOST,
		configuration.DB_PORT,
		configuration.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.RefreshToken{},
		&models.Order{},
		&models.OrderItem{},
		&models.Setting{},
	)
}
