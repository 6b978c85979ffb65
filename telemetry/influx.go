package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"solanum/config"
	"solanum/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const climateMeasurement = "greenhouse_climate"

// InfluxWriter stores sensor_update events as climate points.
// Other event types are ignored.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxWriter(cfg config.InfluxConfig) (*InfluxWriter, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Ping checks that the server reports itself healthy
func (w *InfluxWriter) Ping(ctx context.Context) error {
	health, err := w.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("InfluxDB health check failed: %s", msg)
	}
	return nil
}

func (w *InfluxWriter) Name() string { return "influx" }

func (w *InfluxWriter) Publish(ctx context.Context, event models.WebSocketEvent) error {
	if event.Type != models.EventSensorUpdate {
		return nil
	}
	data, ok := event.Data.(*models.SensorData)
	if !ok || data == nil || data.HasError() {
		return nil
	}

	ts, err := time.Parse(time.RFC3339, data.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	point := influxdb2.NewPoint(climateMeasurement,
		map[string]string{"source": "pi"},
		map[string]interface{}{
			"temperature": data.Temperature,
			"humidity":    data.Humidity,
		},
		ts)

	if err := w.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write failed: %w", err)
	}
	return nil
}

func (w *InfluxWriter) Close() error {
	w.client.Close()
	log.Println("InfluxDB client closed")
	return nil
}
