package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solanum/config"
	"solanum/database"
	"solanum/grok"
	"solanum/handlers"
	"solanum/kafka"
	"solanum/pi"
	"solanum/services"
	"solanum/telemetry"
	"solanum/websocket"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type closableSink interface {
	services.EventSink
	Close() error
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Solanum greenhouse backend on %s", cfg.Addr())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connection established")

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(cfg.Server.AllowOrigins)
	go wsHub.Run(ctx)
	log.Println("WebSocket hub started")

	// Optional event sinks
	sinks := connectSinks(ctx, cfg)
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Printf("Failed to close %s sink: %v", s.Name(), err)
			}
		}
	}()
	eventSinks := make([]services.EventSink, 0, len(sinks))
	for _, s := range sinks {
		eventSinks = append(eventSinks, s)
	}
	broadcaster := services.NewBroadcaster(wsHub, eventSinks...)
	go broadcaster.Run(ctx)

	// External clients
	piClient := pi.NewClient(pi.Config{
		BaseURL:         cfg.Pi.TunnelURL,
		APIKey:          cfg.Pi.APIKey,
		Timeout:         cfg.Pi.Timeout,
		BreakerFailures: cfg.Pi.BreakerFailures,
		BreakerOpenFor:  cfg.Pi.BreakerOpenFor,
	})
	model := grok.NewClient(grok.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})

	// Services
	schedule := services.NewSchedule(cfg.Scheduler)
	guard := services.NewClimateGuard(services.DefaultClimateThresholds(), services.LogAlert)
	executor := services.NewExecutor(db, piClient, broadcaster, cfg.Actuation.WaterDuration, cfg.Actuation.WaterCooldown)
	analyzer := services.NewAnalyzer(db, piClient, model, executor, broadcaster, guard, schedule)
	chat := services.NewChatService(db, model, broadcaster)

	scheduler := services.NewScheduler(db, piClient, analyzer, executor, broadcaster, guard, schedule, cfg.Database.RetentionPeriod)
	scheduler.Start(ctx)

	// Initialize HTTP handlers
	handler := handlers.New(db, piClient, analyzer, executor, chat, wsHub.HandleWebSocket)

	// Setup Gin router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	router.Use(func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	})

	handler.Register(router, handlers.Auth{
		APISecret:     cfg.Server.APISecret,
		CaptureAPIKey: cfg.Server.CaptureAPIKey,
	})

	// Create HTTP server; analyses can take as long as the model timeout
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AI.Timeout + cfg.Pi.Timeout + 30*time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("HTTP server listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// stopping the loops switches off a running pump before the process exits
	stop()
	scheduler.Wait()

	log.Println("Server stopped")
}

// connectSinks starts every configured event mirror. A sink that fails to
// connect is logged and skipped so the greenhouse keeps running without it.
func connectSinks(ctx context.Context, cfg *config.Config) []closableSink {
	var sinks []closableSink

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Printf("Kafka disabled: %v", err)
		} else {
			sinks = append(sinks, producer)
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := telemetry.NewMQTTPublisher(ctx, cfg.MQTT)
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			sinks = append(sinks, publisher)
		}
	}

	if cfg.Influx.URL != "" {
		writer, err := connectInflux(ctx, cfg.Influx)
		if err != nil {
			log.Printf("InfluxDB disabled: %v", err)
		} else {
			sinks = append(sinks, writer)
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	log.Printf("Event sinks: %v", names)
	return sinks
}

func connectInflux(ctx context.Context, cfg config.InfluxConfig) (*telemetry.InfluxWriter, error) {
	writer, err := telemetry.NewInfluxWriter(cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := writer.Ping(pingCtx); err != nil {
		writer.Close()
		return nil, fmt.Errorf("health check: %w", err)
	}
	return writer, nil
}
