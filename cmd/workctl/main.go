package main

import (
	"log"
	"os"

	"workctl/internal/cli"
	"workctl/internal/config"
	"workctl/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Fatal Error: Could not load .env file: %v", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Fatal Error: Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile); err != nil {
		log.Fatalf("Fatal Error: Could not initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	if err := cli.Execute(cfg); err != nil {
		_ = logger.Log.Sync()
		os.Exit(1)
	}
}
