package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads a .env file from the working directory when present, so
// ${VAR} references in the YAML config can be satisfied without exporting.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}
