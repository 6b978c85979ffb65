package pi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"solanum/metrics"
	"solanum/models"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the Pi cannot be reached or its breaker is open
var ErrUnavailable = errors.New("pi service unavailable")

// DeviceError is returned when the Pi answered but reported a failure
type DeviceError struct {
	StatusCode int
	Message    string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("pi returned %d: %s", e.StatusCode, e.Message)
}

// Config configures the Pi client
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// Client talks to the device service exposed through the tunnel
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a Pi client guarded by a circuit breaker
func NewClient(cfg Config) *Client {
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 1
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	failures := uint32(cfg.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pi",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// a device-level error still proves the Pi is reachable
		IsSuccessful: func(err error) bool {
			var devErr *DeviceError
			return err == nil || errors.As(err, &devErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Client{http: httpClient, breaker: breaker}
}

// do executes a request through the breaker and maps transport failures
func (c *Client) do(endpoint string, fn func() (*resty.Response, error)) (*resty.Response, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode() >= http.StatusBadGateway {
			// tunnel up, device behind it down
			return nil, fmt.Errorf("%w: tunnel returned %d", ErrUnavailable, resp.StatusCode())
		}
		if resp.IsError() {
			return nil, &DeviceError{StatusCode: resp.StatusCode(), Message: errorMessage(resp)}
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.ObservePiRequest(endpoint, err)
	if err != nil {
		return nil, err
	}
	return out.(*resty.Response), nil
}

// GetSensors reads the current temperature and humidity
func (c *Client) GetSensors(ctx context.Context) (*models.SensorData, error) {
	var data models.SensorData
	_, err := c.do("sensors", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetResult(&data).Get("/sensors")
	})
	if err != nil {
		return nil, err
	}
	if data.Timestamp == "" {
		data.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return &data, nil
}

// GetRelays reads the current relay state
func (c *Client) GetRelays(ctx context.Context) (*models.RelayState, error) {
	var state models.RelayState
	_, err := c.do("relays", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetResult(&state).Get("/relays")
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SetRelay switches a relay and returns the resulting state
func (c *Client) SetRelay(ctx context.Context, relay models.Relay, on bool) (*models.RelayState, error) {
	var state models.RelayState
	_, err := c.do("relay_"+string(relay), func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(models.RelayCommand{State: &on}).
			SetResult(&state).
			Post("/relay/" + string(relay))
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Capture asks the Pi camera for a fresh JPEG
func (c *Client) Capture(ctx context.Context) ([]byte, error) {
	resp, err := c.do("capture", func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetHeader("Accept", "image/jpeg").Get("/capture")
	})
	if err != nil {
		return nil, err
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, &DeviceError{StatusCode: resp.StatusCode(), Message: "empty capture"}
	}
	return body, nil
}

// Status aggregates sensors and relays into a PiStatus; it never fails
func (c *Client) Status(ctx context.Context) models.PiStatus {
	status := models.PiStatus{
		Status:    models.PiOnline,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	sensors, sErr := c.GetSensors(ctx)
	if sErr == nil {
		status.Sensors = sensors
	}
	relays, rErr := c.GetRelays(ctx)
	if rErr == nil {
		status.Relays = relays
	}

	switch {
	case sErr == nil && rErr == nil:
		if sensors.HasError() {
			status.Status = models.PiError
		}
	case errors.Is(sErr, ErrUnavailable) && errors.Is(rErr, ErrUnavailable):
		status.Status = models.PiOffline
	default:
		status.Status = models.PiError
	}
	return status
}

func errorMessage(resp *resty.Response) string {
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		return http.StatusText(resp.StatusCode())
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}
