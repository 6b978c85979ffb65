package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"solanum/database"
	"solanum/models"
	"solanum/pi"
	"solanum/services"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

// Store is the read side of the database used by the API
type Store interface {
	GetRecentSensorReadings(ctx context.Context, limit int) ([]models.SensorReading, error)
	GetSensorHistory(ctx context.Context, since time.Time) ([]models.SensorReading, error)
	GetLatestAnalysis(ctx context.Context) (*models.Analysis, error)
	GetAnalyses(ctx context.Context, limit int) ([]models.Analysis, error)
	GetRecentCommands(ctx context.Context, limit int) ([]models.Command, error)
	GetChatHistory(ctx context.Context, limit int) ([]models.ChatMessage, error)
}

type PiStatusReader interface {
	Status(ctx context.Context) models.PiStatus
}

type Analyzer interface {
	Analyze(ctx context.Context) (*models.Analysis, error)
	AnalyzeImage(ctx context.Context, image []byte) (*models.Analysis, error)
}

type RelayController interface {
	Execute(ctx context.Context, action models.Action) (*models.Command, error)
	StopWater(ctx context.Context, reason string) (*models.Command, error)
}

type Chatter interface {
	Send(ctx context.Context, message string) (*models.ChatResponse, error)
}

// Handler contains all the dependencies needed for HTTP handlers
type Handler struct {
	db       Store
	pi       PiStatusReader
	analyzer Analyzer
	relays   RelayController
	chat     Chatter
	ws       http.HandlerFunc
}

// New creates a new handler instance
func New(db Store, piStatus PiStatusReader, analyzer Analyzer, relays RelayController, chat Chatter, ws http.HandlerFunc) *Handler {
	return &Handler{
		db:       db,
		pi:       piStatus,
		analyzer: analyzer,
		relays:   relays,
		chat:     chat,
		ws:       ws,
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: msg, StatusCode: status})
}

// queryInt parses a positive integer query parameter, capped at max
func queryInt(c *gin.Context, key string, def, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		respondError(c, http.StatusBadRequest, "invalid "+key+": must be a positive integer")
		return 0, false
	}
	if v > max {
		v = max
	}
	return v, true
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// GetState returns the dashboard snapshot
func (h *Handler) GetState(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.db.GetLatestAnalysis(ctx)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Failed to get latest analysis: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve state")
		return
	}

	readings, err := h.db.GetRecentSensorReadings(ctx, 10)
	if err != nil {
		log.Printf("Failed to get sensor readings: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve state")
		return
	}

	c.JSON(http.StatusOK, models.StateResponse{
		Analysis:      analysis,
		RecentSensors: readings,
		PiStatus:      h.pi.Status(ctx),
	})
}

// GetSensors returns the most recent readings
func (h *Handler) GetSensors(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50, 1000)
	if !ok {
		return
	}

	readings, err := h.db.GetRecentSensorReadings(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to get sensor readings: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve sensor readings")
		return
	}
	c.JSON(http.StatusOK, readings)
}

// GetSensorHistory returns readings from the last N hours, oldest first
func (h *Handler) GetSensorHistory(c *gin.Context) {
	hours, ok := queryInt(c, "hours", 24, 720)
	if !ok {
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	readings, err := h.db.GetSensorHistory(c.Request.Context(), since)
	if err != nil {
		log.Printf("Failed to get sensor history: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve sensor history")
		return
	}
	c.JSON(http.StatusOK, readings)
}

// GetLatestAnalysis returns the newest analysis including its photo
func (h *Handler) GetLatestAnalysis(c *gin.Context) {
	analysis, err := h.db.GetLatestAnalysis(c.Request.Context())
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, http.StatusNotFound, "No analysis yet")
		return
	}
	if err != nil {
		log.Printf("Failed to get latest analysis: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve analysis")
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetAnalyses lists recent analyses without photos
func (h *Handler) GetAnalyses(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20, 100)
	if !ok {
		return
	}

	analyses, err := h.db.GetAnalyses(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to get analyses: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve analyses")
		return
	}
	c.JSON(http.StatusOK, analyses)
}

// TriggerAnalysis captures a photo and analyzes it now
func (h *Handler) TriggerAnalysis(c *gin.Context) {
	analysis, err := h.analyzer.Analyze(c.Request.Context())
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// CaptureUpload accepts a photo pushed by the Pi, as a raw JPEG body or a
// multipart "image" field.
func (h *Handler) CaptureUpload(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	analysis, err := h.analyzer.AnalyzeImage(c.Request.Context(), image)
	if err != nil {
		respondAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func readImage(c *gin.Context) ([]byte, error) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, errors.New("multipart field \"image\" is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.New("failed to open uploaded image")
		}
		defer f.Close()
		r = f
	}

	image, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, errors.New("failed to read image")
	}
	if len(image) == 0 {
		return nil, errors.New("image is required")
	}
	if len(image) > maxImageBytes {
		return nil, errors.New("image too large")
	}
	return image, nil
}

func respondAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrBusy):
		respondError(c, http.StatusConflict, "Analysis already in progress")
	case errors.Is(err, pi.ErrUnavailable):
		respondError(c, http.StatusServiceUnavailable, "Pi is unavailable")
	default:
		log.Printf("Analysis failed: %v", err)
		respondError(c, http.StatusInternalServerError, "Analysis failed")
	}
}

// GetCommands lists recently executed commands
func (h *Handler) GetCommands(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50, 1000)
	if !ok {
		return
	}

	commands, err := h.db.GetRecentCommands(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to get commands: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve commands")
		return
	}
	c.JSON(http.StatusOK, commands)
}

// SetRelay switches a relay by hand. Water on runs a timed watering cycle.
func (h *Handler) SetRelay(c *gin.Context) {
	relay, ok := models.ParseRelay(c.Param("relay"))
	if !ok {
		respondError(c, http.StatusBadRequest, "relay must be light or water")
		return
	}

	var req models.RelayCommand
	if err := c.ShouldBindJSON(&req); err != nil || req.State == nil {
		respondError(c, http.StatusBadRequest, "body must be {\"state\": true|false}")
		return
	}

	ctx := c.Request.Context()
	var (
		cmd *models.Command
		err error
	)
	switch {
	case relay == models.RelayWater && !*req.State:
		cmd, err = h.relays.StopWater(ctx, "manual")
	case relay == models.RelayWater:
		cmd, err = h.relays.Execute(ctx, models.Action{Type: models.ActionWater, Reason: "manual", Execute: true})
	case *req.State:
		cmd, err = h.relays.Execute(ctx, models.Action{Type: models.ActionLightOn, Reason: "manual", Execute: true})
	default:
		cmd, err = h.relays.Execute(ctx, models.Action{Type: models.ActionLightOff, Reason: "manual", Execute: true})
	}

	if err != nil {
		var devErr *pi.DeviceError
		switch {
		case errors.Is(err, services.ErrCooldown):
			respondError(c, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, pi.ErrUnavailable):
			respondError(c, http.StatusServiceUnavailable, "Pi is unavailable")
		case errors.As(err, &devErr):
			respondError(c, http.StatusBadGateway, devErr.Message)
		default:
			log.Printf("Relay %s failed: %v", relay, err)
			respondError(c, http.StatusInternalServerError, "Relay command failed")
		}
		return
	}
	c.JSON(http.StatusOK, cmd)
}

// GetPiStatus reports Pi reachability
func (h *Handler) GetPiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pi.Status(c.Request.Context()))
}

// Chat sends a message to the plant
func (h *Handler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.chat.Send(c.Request.Context(), req.Message)
	if errors.Is(err, services.ErrEmptyMessage) {
		respondError(c, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		log.Printf("Chat failed: %v", err)
		respondError(c, http.StatusInternalServerError, "Chat failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetChatHistory returns the conversation, oldest first
func (h *Handler) GetChatHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50, 500)
	if !ok {
		return
	}

	messages, err := h.db.GetChatHistory(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to get chat history: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to retrieve chat history")
		return
	}
	c.JSON(http.StatusOK, messages)
}

// WebSocketEndpoint upgrades the connection and hands it to the hub
func (h *Handler) WebSocketEndpoint(c *gin.Context) {
	h.ws(c.Writer, c.Request)
}
