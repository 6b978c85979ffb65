package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	addr := getEnvOrDefault("SIM_ADDR", ":8000")
	apiKey := os.Getenv("CAPTURE_API_KEY")

	faultRate, err := strconv.ParseFloat(getEnvOrDefault("SIM_FAULT_RATE", "0.02"), 64)
	if err != nil {
		log.Fatalf("Invalid SIM_FAULT_RATE: %v", err)
	}
	maxWaterSeconds, err := strconv.Atoi(getEnvOrDefault("SIM_MAX_WATER_SECONDS", "30"))
	if err != nil {
		log.Fatalf("Invalid SIM_MAX_WATER_SECONDS: %v", err)
	}

	log.Printf("Configuration: addr=%s, faultRate=%.2f, maxWater=%ds, apiKey set=%t",
		addr, faultRate, maxWaterSeconds, apiKey != "")

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	sim := NewPiSimulator(apiKey, faultRate, time.Duration(maxWaterSeconds)*time.Second, time.Now().UnixNano())

	server := &http.Server{
		Addr:         addr,
		Handler:      sim.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Pi simulator listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Simulator forced to shutdown: %v", err)
	}
}
