// Package sentiment is the HTTP client for the sentiment collaborator.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Options struct {
	Timeout            time.Duration
	RequestsPerSecond  float64
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
		limiter:    limiter,
	}
}

func (c *Client) DetectSentiment(ctx context.Context, text, languageCode string) (ports.Sentiment, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.Sentiment{}, err
		}
	}

	request := map[string]any{
		"text":          text,
		"language_code": languageCode,
	}
	var response struct {
		Sentiment string             `json:"sentiment"`
		Scores    map[string]float64 `json:"scores"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/sentiment", request, &response, "sentiment")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "sentiment.detect", call, classifySentimentError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return ports.Sentiment{}, wrapByClassification("detect sentiment", err)
	}

	return ports.Sentiment{
		Label:  response.Sentiment,
		Scores: response.Scores,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sentiment %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
