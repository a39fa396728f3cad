package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/neighbr/backend-go/app/bootstrap"
	"github.com/neighbr/backend-go/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}
