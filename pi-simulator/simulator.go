package main

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"solanum/models"

	"github.com/gin-gonic/gin"
)

// PiSimulator serves the device API with drifting climate readings
type PiSimulator struct {
	mutex       sync.Mutex
	apiKey      string
	faultRate   float64
	maxWater    time.Duration
	temperature float64
	humidity    float64
	relays      models.RelayState
	waterTimer  *time.Timer
	waterCycle  uint64
	rng         *rand.Rand
}

// NewPiSimulator creates a simulator; faultRate is the probability that a sensor read fails
func NewPiSimulator(apiKey string, faultRate float64, maxWater time.Duration, seed int64) *PiSimulator {
	return &PiSimulator{
		apiKey:      apiKey,
		faultRate:   faultRate,
		maxWater:    maxWater,
		temperature: 22.0,
		humidity:    55.0,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// readSensors advances the simulated climate by one step
func (s *PiSimulator) readSensors() models.SensorData {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	if s.rng.Float64() < s.faultRate {
		msg := "DHT22 read failed: checksum mismatch"
		return models.SensorData{Timestamp: now, Error: &msg}
	}

	s.temperature += (s.rng.Float64() - 0.5) * 0.6
	s.humidity += (s.rng.Float64() - 0.5) * 2.0
	if s.relays.Light {
		s.temperature += 0.05
	} else {
		s.temperature -= 0.05
	}
	if s.relays.Water {
		s.humidity += 1.5
	} else {
		s.humidity -= 0.1
	}

	s.temperature = clamp(s.temperature, 12.0, 38.0)
	s.humidity = clamp(s.humidity, 20.0, 95.0)

	return models.SensorData{Temperature: round1(s.temperature), Humidity: round1(s.humidity), Timestamp: now}
}

func (s *PiSimulator) setRelay(relay models.Relay, on bool) models.RelayState {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch relay {
	case models.RelayLight:
		s.relays.Light = on
	case models.RelayWater:
		s.relays.Water = on
		if s.waterTimer != nil {
			s.waterTimer.Stop()
			s.waterTimer = nil
		}
		// the pump never runs unattended for longer than maxWater
		s.waterCycle++
		if on && s.maxWater > 0 {
			cycle := s.waterCycle
			s.waterTimer = time.AfterFunc(s.maxWater, func() { s.waterTimeout(cycle) })
		}
	}
	log.Printf("Relay %s -> %t", relay, on)
	return s.relays
}

// waterTimeout switches the pump off unless the pump was switched again
// while the callback waited for the lock
func (s *PiSimulator) waterTimeout(cycle uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.waterCycle != cycle {
		return
	}
	log.Println("Water safety timeout, switching pump off")
	s.relays.Water = false
	s.waterTimer = nil
}

func (s *PiSimulator) relayState() models.RelayState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.relays
}

// Router exposes the device endpoints
func (s *PiSimulator) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), s.requireKey)

	router.GET("/sensors", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.readSensors())
	})
	router.GET("/relays", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.relayState())
	})
	router.POST("/relay/:relay", func(c *gin.Context) {
		relay, ok := models.ParseRelay(c.Param("relay"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown relay"})
			return
		}
		var req models.RelayCommand
		if err := c.ShouldBindJSON(&req); err != nil || req.State == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state is required"})
			return
		}
		c.JSON(http.StatusOK, s.setRelay(relay, *req.State))
	})
	router.GET("/capture", func(c *gin.Context) {
		img, err := s.capture()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/jpeg", img)
	})
	return router
}

func (s *PiSimulator) requireKey(c *gin.Context) {
	if s.apiKey != "" && c.GetHeader("X-API-Key") != s.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

// capture renders a pot with a plant; the scene is darker with the light off
func (s *PiSimulator) capture() ([]byte, error) {
	const w, h = 320, 240
	lightOn := s.relayState().Light

	scale := 1.0
	if !lightOn {
		scale = 0.35
	}
	shade := func(r, g, b uint8) color.RGBA {
		return color.RGBA{uint8(float64(r) * scale), uint8(float64(g) * scale), uint8(float64(b) * scale), 255}
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	background := shade(225, 230, 220)
	pot := shade(170, 90, 50)
	soil := shade(80, 55, 35)
	leaf := shade(60, 150, 70)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := background
			switch {
			case y > 170 && x > 110 && x < 210:
				c = pot
			case y > 160 && y <= 170 && x > 105 && x < 215:
				c = soil
			default:
				dx, dy := float64(x-160), float64(y-105)
				if dx*dx/3600+dy*dy/2500 < 1 {
					c = leaf
				}
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clamp constrains a value between min and max
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
