package grok

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"solanum/models"

	"github.com/go-resty/resty/v2"
)

// ErrInvalidResponse is returned when the model reply cannot be decoded
var ErrInvalidResponse = errors.New("invalid model response")

// Config configures the model API client
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint
type Client struct {
	http  *resty.Client
	model string
}

// NewClient creates a model API client
func NewClient(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, model: cfg.Model}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error interface{} `json:"error"`
}

func (c *Client) complete(ctx context.Context, messages []message, temperature float64) (string, error) {
	var out completionResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completionRequest{Model: c.model, Messages: messages, Temperature: temperature}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("model API returned %d: %v", resp.StatusCode(), apiErr.Error)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return out.Choices[0].Message.Content, nil
}

// Analyze sends a plant photo with its climate context and decodes the assessment
func (c *Client) Analyze(ctx context.Context, image []byte, ac AnalysisContext) (*models.AnalysisResponse, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	messages := []message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
			{Type: "text", Text: ac.Prompt()},
		}},
	}

	content, err := c.complete(ctx, messages, 0.2)
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(content)
}

// Chat answers a user message given prior turns and a greenhouse summary
func (c *Client) Chat(ctx context.Context, history []models.ChatMessage, userMessage string, summary string) (string, error) {
	messages := []message{{Role: "system", Content: chatSystemPrompt + "\n\n" + summary}}
	for _, m := range history {
		messages = append(messages, message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, message{Role: "user", Content: userMessage})

	reply, err := c.complete(ctx, messages, 0.7)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// ParseAnalysis extracts the JSON object from a model reply, which may be
// wrapped in a code fence or surrounded by prose.
func ParseAnalysis(content string) (*models.AnalysisResponse, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}

	var out models.AnalysisResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}
