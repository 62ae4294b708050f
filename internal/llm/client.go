package llm

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

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/retry"
)

// Completion is one answer from the completion service. Token counts come from
// the service's usage block when present, otherwise they are estimated.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Cost prices the completion with the given rate table.
func (c Completion) Cost(r cost.Rates) float64 {
	return r.Compute(c.InputTokens, c.OutputTokens)
}

// Completer is the narrow interface the extractor, classifier and reviewer need.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error)
}

type Options struct {
	GatewayURL   string
	APIKey       string
	Model        string
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
	HTTPClient   *http.Client
	Logger       *logger.Logger
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	url          string
	apiKey       string
	model        string
	httpTimeout  time.Duration
	maxRetryTime time.Duration
	http         *http.Client
	log          *logger.Logger
}

var _ Completer = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.GatewayURL == "" || opts.APIKey == "" {
		return nil, fmt.Errorf("llm gateway not configured")
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	if opts.MaxRetryTime <= 0 {
		opts.MaxRetryTime = 45 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.HTTPTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	return &Client{
		url:          opts.GatewayURL,
		apiKey:       opts.APIKey,
		model:        opts.Model,
		httpTimeout:  opts.HTTPTimeout,
		maxRetryTime: opts.MaxRetryTime,
		http:         opts.HTTPClient,
		log:          opts.Logger.Component("llm"),
	}, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error) {
	messages := make([]map[string]string, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})

	reqBody := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.0,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal llm request: %w", err)
	}
	c.log.WithField("payload_len", len(data)).Debug("llm request")

	var out Completion
	var lastErr error

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.httpTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		c.log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("llm gateway status %d: %s", resp.StatusCode, truncate(string(body), 300))
			// Permanent: don't retry on client errors, except rate limiting
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(lastErr)
			}
			return lastErr
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("decode llm response: %w", err)
			return lastErr
		}
		if len(parsed.Choices) == 0 {
			lastErr = errors.New("no choices in llm response")
			return lastErr
		}

		out = Completion{Text: strings.TrimSpace(parsed.Choices[0].Message.Content)}
		if parsed.Usage != nil && (parsed.Usage.PromptTokens > 0 || parsed.Usage.CompletionTokens > 0) {
			out.InputTokens = parsed.Usage.PromptTokens
			out.OutputTokens = parsed.Usage.CompletionTokens
		} else {
			out.InputTokens = cost.EstimateTokens(systemPrompt) + cost.EstimateTokens(userPrompt)
			out.OutputTokens = cost.EstimateTokens(out.Text)
		}
		lastErr = nil
		return nil
	}

	if err := retry.HTTP(ctx, c.maxRetryTime, op); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return Completion{}, fmt.Errorf("llm completion failed: %w", lastErr)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
