package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/Bizinso/BizSocials-sub013/internal/config"
	"github.com/Bizinso/BizSocials-sub013/internal/database"
	"github.com/Bizinso/BizSocials-sub013/internal/dispatcher"
	"github.com/Bizinso/BizSocials-sub013/internal/gateway"
	"github.com/Bizinso/BizSocials-sub013/internal/handlers"
	"github.com/Bizinso/BizSocials-sub013/internal/ingest"
	"github.com/Bizinso/BizSocials-sub013/internal/logger"
	"github.com/Bizinso/BizSocials-sub013/internal/rabbitmq"
	"github.com/Bizinso/BizSocials-sub013/internal/registry"
	"github.com/Bizinso/BizSocials-sub013/internal/routes"
	"github.com/Bizinso/BizSocials-sub013/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	log, err := logger.Init(cfg.Server.LogLevel)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// PostgreSQL
	if err := database.RunMigrations(&cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	// RabbitMQ
	queue := rabbitmq.NewConnection(&cfg.RabbitMQ, log)
	if err := queue.Connect(); err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer queue.Close()

	// Stores and registry service
	endpointStore := registry.NewGormEndpointStore(db)
	deliveryStore := registry.NewGormDeliveryStore(db)
	registrySvc := registry.NewService(endpointStore, deliveryStore, log)

	// Outbound pipeline: source events fan out to delivery tasks, tasks get
	// delivered (and retried) by the worker.
	taskPublisher := dispatcher.NewQueueTaskPublisher(
		queue, cfg.Dispatcher.DeliveryExchange, cfg.Dispatcher.DeliveryRoutingKey)
	router := dispatcher.NewRouter(endpointStore, taskPublisher, log)

	sourceConsumer := dispatcher.NewSourceConsumer(&cfg.Dispatcher, queue, router, log)
	if err := sourceConsumer.Start(); err != nil {
		log.Fatal("Failed to start source consumer", zap.Error(err))
	}
	defer func() {
		if err := sourceConsumer.Stop(); err != nil {
			log.Error("Error stopping source consumer", zap.Error(err))
		}
	}()

	deliverer := worker.NewDeliverer(
		&cfg.Worker,
		endpointStore,
		deliveryStore,
		worker.NewSender(cfg.Worker.MaxResponseBodySize),
		taskPublisher,
		worker.TimerScheduler{},
		log,
	)
	deliveryWorker := worker.NewWorker(&cfg.Worker, queue, deliverer, log)
	if err := deliveryWorker.Start(); err != nil {
		log.Fatal("Failed to start delivery worker", zap.Error(err))
	}
	defer func() {
		if err := deliveryWorker.Stop(); err != nil {
			log.Error("Error stopping delivery worker", zap.Error(err))
		}
	}()

	// Inbound pipeline: verified platform events leave through the forwarder.
	var ingestConsumer ingest.Consumer = ingest.NewLogConsumer(log)
	if cfg.Inbound.IngestRoutingKey != "" {
		ingestConsumer = ingest.NewQueueConsumer(queue, cfg.Inbound.IngestRoutingKey)
	}
	forwarder := ingest.NewForwarder(ingestConsumer, cfg.Inbound.IngestBuffer, log)
	forwarder.Start()

	gatewayHandler := gateway.NewHandler(&cfg.Inbound, forwarder, log)
	endpointsHandler := handlers.NewEndpointsHandler(registrySvc, taskPublisher, log)
	healthHandler := handlers.NewHealthHandler(db, queue)

	app := fiber.New(fiber.Config{
		AppName:      "Webhook Service",
		ServerHeader: "Fiber",
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Scope-ID",
	}))

	routes.SetupRoutes(app, gatewayHandler, endpointsHandler, healthHandler)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	// The forwarder drains only after the server stops accepting requests.
	forwarder.Stop()

	log.Info("Server stopped")
}
