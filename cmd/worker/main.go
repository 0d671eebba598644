package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ssq-labs/commentpilot/internal/pkg/cache"
	"github.com/ssq-labs/commentpilot/internal/pkg/database"
	"github.com/ssq-labs/commentpilot/internal/pkg/env"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/service"
)

func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	settings, err := service.LoadSettings()
	if err != nil {
		log.Fatal(err)
	}

	manager := jobqueue.GetManager()
	svc, err := service.New(context.Background(), database.GetDB(), manager, settings)
	if err != nil {
		log.Fatal(err)
	}

	svc.RegisterWorkers()
	manager.Start()
	log.Printf("Worker started with %d workers", settings.Pipeline.Workers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Stopping worker")
	manager.Stop()
}
