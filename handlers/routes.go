package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"solanum/metrics"

	"github.com/gin-gonic/gin"
)

// Auth holds the shared secrets guarding mutating routes; empty disables a check
type Auth struct {
	APISecret     string
	CaptureAPIKey string
}

// Register mounts every route on the router
func (h *Handler) Register(router gin.IRouter, auth Auth) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", h.WebSocketEndpoint)

	api := router.Group("/api")
	{
		api.GET("/state", h.GetState)

		// Sensors
		api.GET("/sensors", h.GetSensors)
		api.GET("/sensors/history", h.GetSensorHistory)

		// Analyses
		api.GET("/analysis/latest", h.GetLatestAnalysis)
		api.GET("/analyses", h.GetAnalyses)
		api.POST("/analyze", requireBearer(auth.APISecret), h.TriggerAnalysis)
		api.POST("/capture", requireHeader("X-API-Key", auth.CaptureAPIKey), h.CaptureUpload)

		// Actuators
		api.GET("/commands", h.GetCommands)
		api.POST("/relay/:relay", requireBearer(auth.APISecret), h.SetRelay)
		api.GET("/pi/status", h.GetPiStatus)

		// Chat
		api.POST("/chat", requireBearer(auth.APISecret), h.Chat)
		api.GET("/chat/history", h.GetChatHistory)
	}
}

func requireBearer(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || !secretEqual(token, secret) {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

func requireHeader(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && !secretEqual(c.GetHeader(header), secret) {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
