package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/export"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	if len(service.Config.Schedule) == 0 {
		logger.Error.Fatalf("No scheduled exports configured")
	}

	scheduler := export.NewScheduler(
		service.Store,
		export.NewRegistry(),
		service.Config.ExportDefaults(),
		service.Config.DisplayType(),
	)
	if err := scheduler.Schedule(service.Config.Schedule); err != nil {
		logger.Error.Fatalf("Failed to schedule exports: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info.Printf("Running %d scheduled exports", len(service.Config.Schedule))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info.Println("Stopping scheduled exports")
}
