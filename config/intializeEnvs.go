package config

import (
	"log/slog"
	"os"

	godotenv "github.com/joho/godotenv"
)

// InitializeEnvs loads the .env file matching APP_ENV into the process
// environment. Missing files are not an error; the system environment is used.
func InitializeEnvs(logger *slog.Logger) {
	appEnv := os.Getenv("APP_ENV")
	switch appEnv {
	case "docker":
		if err := godotenv.Overload(".env.docker"); err == nil {
			logger.Debug("Loaded .env.docker")
		} else {
			logger.Debug(".env.docker not found, using existing environment")
		}
	case "dev", "":
		if err := godotenv.Overload(".env.dev"); err == nil {
			logger.Debug("Loaded .env.dev")
		} else if err := godotenv.Overload(".env"); err == nil {
			logger.Debug("Loaded .env")
		} else {
			logger.Debug("No .env.dev or .env found, using system environment variables")
		}
	default:
		fname := ".env." + appEnv
		if err := godotenv.Overload(fname); err == nil {
			logger.Debug("Loaded env file", "file", fname)
		} else if err := godotenv.Overload(".env"); err == nil {
			logger.Debug("Loaded .env")
		} else {
			logger.Debug("No env file found, using system environment variables", "file", fname)
		}
	}
}
