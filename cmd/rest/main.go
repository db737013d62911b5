package main

import (
	"context"
	"log"

	"github.com/lrfluobida/agent-job-coach/internal/bootstrap"
	"github.com/lrfluobida/agent-job-coach/internal/config"
	"github.com/lrfluobida/agent-job-coach/internal/server"
	"github.com/lrfluobida/agent-job-coach/internal/tracer"
	"github.com/lrfluobida/agent-job-coach/pkg/database"
)

func main() {
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	cfg := config.Load()

	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	container := bootstrap.NewContainer(gormDB, cfg)

	// Embed pipeline consumer
	go func() {
		log.Println("Background: Starting Consumer Service...")
		if err := container.ConsumerService.Consume(context.Background()); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	srv := server.New(cfg, container)

	log.Fatal(srv.Run())
}
