package main

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logger.L().Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		logger.L().Debug("no .env file found; relying on existing environment")
	}
}
