package main

import (
	"flag"
	"io/fs"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/handlers"
	"github.com/shrimpsizemoose/exportprofiles/migrations"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	var fsys fs.FS = migrations.FS
	if dir := service.Config.Database.MigrationsDir; dir != "" {
		fsys = os.DirFS(dir)
	}
	if err := service.Store.ApplyMigrations(fsys); err != nil {
		logger.Error.Fatalf("Failed to apply migrations: %v", err)
	}

	mux := http.NewServeMux()
	handlers.NewProfileHandler(service).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info.Printf("Starting export profiles server on %s", service.Config.Server.Port)
	logger.Info.Printf("Auth enabled: %v", service.Auth.Enabled())
	logger.Debug.Println("Requiring headers:")
	for _, h := range service.Config.API.RequiredHeaders {
		logger.Debug.Printf("  %s: %s", h.Name, h.Value)
	}
	if err := http.ListenAndServe(service.Config.Server.Port, mux); err != nil {
		logger.Error.Fatalf("Export profiles server failed: %v", err)
	}
}
