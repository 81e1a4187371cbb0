package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// config is read once at startup from the environment (and .env, if present).
type config struct {
	DBURL      string
	SQLitePath string
	Port       string
	LogLevel   string

	NutritionProvider string // edamam or openai
	EdamamAppID       string
	EdamamAppKey      string
	EdamamBaseURL     string
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	SendGridAPIKey  string
	ReportFromEmail string
	ReportFromName  string
	ReportS3Bucket  string
	AWSRegion       string

	TokenMaxAge time.Duration
}

func loadConfig() (config, error) {
	// A missing .env is fine; the environment may be set by the host.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := config{
		DBURL:             os.Getenv("DB_URL"),
		SQLitePath:        getenv("SQLITE_PATH", "keto.db"),
		Port:              getenv("PORT", "3000"),
		LogLevel:          strings.ToLower(os.Getenv("LOG_LEVEL")),
		NutritionProvider: strings.ToLower(getenv("NUTRITION_PROVIDER", "edamam")),
		EdamamAppID:       os.Getenv("EDAMAM_APP_ID"),
		EdamamAppKey:      os.Getenv("EDAMAM_APP_KEY"),
		EdamamBaseURL:     os.Getenv("EDAMAM_BASE_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		ReportFromEmail:   getenv("REPORT_FROM_EMAIL", "reports@ketoapp.local"),
		ReportFromName:    getenv("REPORT_FROM_NAME", "KetoApp"),
		ReportS3Bucket:    os.Getenv("REPORT_S3_BUCKET"),
		AWSRegion:         getenv("AWS_REGION", "us-east-1"),
	}

	days, err := strconv.Atoi(getenv("TOKEN_MAX_AGE_DAYS", "30"))
	if err != nil || days < 0 {
		return config{}, fmt.Errorf("TOKEN_MAX_AGE_DAYS must be a non-negative integer, got %q", os.Getenv("TOKEN_MAX_AGE_DAYS"))
	}
	cfg.TokenMaxAge = time.Duration(days) * 24 * time.Hour

	switch cfg.NutritionProvider {
	case "edamam", "openai":
	default:
		return config{}, fmt.Errorf("NUTRITION_PROVIDER must be edamam or openai, got %q", cfg.NutritionProvider)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newLogger builds a production JSON logger; LOG_LEVEL=debug lowers the level.
func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch level {
	case "debug":
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zc.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return zc.Build()
}
