package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Secrets holds credentials sourced from the environment, never from YAML.
type Secrets struct {
	APIKey      string
	APISecret   string
	AccountHash string
	FredAPIKey  string
}

// LoadSecrets hydrates Secrets from the environment, layering a .env file
// underneath when one exists next to the process.
func LoadSecrets() (Secrets, error) {
	// Missing .env is fine: CI and production inject real env vars.
	_ = godotenv.Load()

	s := Secrets{
		APIKey:      os.Getenv("BROKER_API_KEY"),
		APISecret:   os.Getenv("BROKER_API_SECRET"),
		AccountHash: os.Getenv("BROKER_ACCOUNT_HASH"),
		FredAPIKey:  os.Getenv("FRED_API_KEY"),
	}
	var missing []string
	if s.APIKey == "" {
		missing = append(missing, "BROKER_API_KEY")
	}
	if s.AccountHash == "" {
		missing = append(missing, "BROKER_ACCOUNT_HASH")
	}
	if s.FredAPIKey == "" {
		missing = append(missing, "FRED_API_KEY")
	}
	if len(missing) > 0 {
		return Secrets{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	return s, nil
}
