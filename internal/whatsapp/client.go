package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/postclinics/clinic-agent/internal/observability/metrics"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

const defaultBaseURL = "https://api.z-api.io"

// SendResult is the structured delivery outcome consumed verbatim by the
// reminder scheduler's audit log and by retry logic.
type SendResult struct {
	Success      bool
	StatusCode   int
	ErrorMessage string
}

// Sender delivers an outbound WhatsApp text message.
type Sender interface {
	SendText(ctx context.Context, phone, message string) SendResult
}

// Config controls the Z-API delivery client.
type Config struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	HTTPClient  *http.Client
	Metrics     *metrics.PipelineMetrics
	Logger      *logging.Logger
}

// Client wraps the Z-API send-text endpoint with bounded retry.
type Client struct {
	baseURL     string
	instanceID  string
	token       string
	clientToken string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.InstanceID) == "" || strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ClientToken) == "" {
		return nil, errors.New("whatsapp: instance id, token and client token are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:     baseURL,
		instanceID:  cfg.InstanceID,
		token:       cfg.Token,
		clientToken: cfg.ClientToken,
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		metrics:     cfg.Metrics,
		logger:      logger,
	}, nil
}

type sendTextPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText posts a text message, retrying transient failures with exponential
// backoff. 4xx responses are non-retryable; 5xx and network errors retry up
// to the attempt ceiling.
func (c *Client) SendText(ctx context.Context, phone, message string) SendResult {
	url := fmt.Sprintf("%s/instances/%s/token/%s/send-text", c.baseURL, c.instanceID, c.token)

	body, err := json.Marshal(sendTextPayload{Phone: phone, Message: message})
	if err != nil {
		return SendResult{Success: false, ErrorMessage: fmt.Sprintf("encode payload: %v", err)}
	}

	var last SendResult
	defer func() { c.metrics.ObserveSend(last.Success) }()
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		last = c.post(ctx, url, body)
		if last.Success {
			return last
		}
		// Client errors will not get better on retry.
		if last.StatusCode >= 400 && last.StatusCode < 500 {
			c.logger.Error("whatsapp send rejected", "status", last.StatusCode, "error", last.ErrorMessage)
			return last
		}
		if attempt == c.maxAttempts {
			break
		}
		delay := c.baseDelay * time.Duration(1<<(attempt-1))
		c.logger.Warn("whatsapp send failed, retrying",
			"attempt", attempt, "status", last.StatusCode, "delay", delay.String())
		select {
		case <-ctx.Done():
			last.ErrorMessage = ctx.Err().Error()
			return last
		case <-time.After(delay):
		}
	}
	c.logger.Error("whatsapp send exhausted retries", "status", last.StatusCode, "error", last.ErrorMessage)
	return last
}

func (c *Client) post(ctx context.Context, url string, body []byte) SendResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{ErrorMessage: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Token", c.clientToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{ErrorMessage: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResult{Success: true, StatusCode: resp.StatusCode}
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return SendResult{
		StatusCode:   resp.StatusCode,
		ErrorMessage: strings.TrimSpace(string(detail)),
	}
}
