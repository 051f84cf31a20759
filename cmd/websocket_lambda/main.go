package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/chris/invoice-settlement/pkg/bootstrap"
	"github.com/chris/invoice-settlement/pkg/config"
	wshandler "github.com/chris/invoice-settlement/pkg/handlers/websockets"
	"github.com/chris/invoice-settlement/pkg/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Handles the $connect, $disconnect and $default routes of the API Gateway websocket API.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		zl.Fatal("Unable to load SDK config", zap.Error(err))
	}
	stores, err := bootstrap.OpenStores(ctx, cfg.Store, awsCfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}

	lambda.Start(wshandler.NewHandler(stores.Connections, nil, zl).HandleRequest)
}
