package main

import (
	"context"
	"fmt"
	"os"

	"SignalFlow/internal/di"
	"SignalFlow/pkg/config"
	"SignalFlow/pkg/logger"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/config.yaml", "config file path")
	pflag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		os.Exit(1)
	}

	log, _ := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	log.Info("starting signalflow",
		logger.String("env", cfg.Environment),
		logger.String("feed", cfg.Feed.Type),
		logger.String("exchange", cfg.Exchange.Type),
		logger.String("lock", cfg.Lock.Backend),
		logger.Strings("kafka_brokers", cfg.Kafka.Brokers),
	)

	if err := app.Run(context.Background()); err != nil {
		log.Error("app error", logger.Error(err))
		os.Exit(1)
	}
}
