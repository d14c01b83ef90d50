package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	generateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genai_generate_requests_total",
		Help: "Total prompts sent to the text generator.",
	})
	generateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genai_generate_failures_total",
		Help: "Generator calls that returned an error or bad status.",
	})
)

// Generator is the opaque text-generation collaborator: prompt in, raw text
// out. No schema is guaranteed on success and calls may fail.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds connection details for the generator service.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client implements Generator against an HTTP wrapper service.
type Client struct {
	httpClient  *http.Client
	config      Config
	logger      zerolog.Logger
	generateURL string
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config:      cfg,
		logger:      logger.With().Str("component", "genai_client").Logger(),
		generateURL: base + "/generate",
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate sends a prompt and returns the model's raw text verbatim.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.config.URL == "" {
		return "", fmt.Errorf("generator endpoint not configured")
	}

	generateTotal.Inc()

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		generateFailures.Inc()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		generateFailures.Inc()
		return "", fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		generateFailures.Inc()
		return "", fmt.Errorf("decode generator payload: %w", err)
	}

	if strings.TrimSpace(genResp.Text) == "" {
		generateFailures.Inc()
		return "", fmt.Errorf("generator returned empty text")
	}

	return genResp.Text, nil
}
