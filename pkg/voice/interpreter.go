package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-guardian/internal/httpc"
)

// Interpretation is a model answer with its self-reported confidence.
type Interpretation struct {
	Text       string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// Interpreter answers a non-emergency voice query.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string) (Interpretation, error)
}

// DefaultSystemPrompt steers the model toward short, safety focused answers
// in the JSON shape Interpret expects.
const DefaultSystemPrompt = `You are the voice assistant of a personal safety app.
Answer in one or two short sentences suitable for text-to-speech.
Reply with JSON only: {"response": "<answer>", "confidence": <0..1>}.
Confidence is how sure you are the answer is correct and safe to repeat.`

// InterpreterConfig configures the OpenAI-compatible interpreter.
type InterpreterConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// DefaultInterpreterConfig returns defaults for api.openai.com.
func DefaultInterpreterConfig() InterpreterConfig {
	return InterpreterConfig{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  0.3,
		MaxTokens:    200,
		Timeout:      20 * time.Second,
		MaxRetries:   2,
		RetryDelay:   500 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// InterpreterOption configures the interpreter.
type InterpreterOption func(*InterpreterConfig)

// WithBaseURL sets the API base URL, e.g. "http://localhost:11434/v1".
func WithBaseURL(u string) InterpreterOption {
	return func(c *InterpreterConfig) { c.BaseURL = u }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) InterpreterOption {
	return func(c *InterpreterConfig) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) InterpreterOption {
	return func(c *InterpreterConfig) { c.Model = model }
}

// WithRetry sets retry count and base delay.
func WithRetry(n int, delay time.Duration) InterpreterOption {
	return func(c *InterpreterConfig) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

// WithInterpreterLogger sets the logger.
func WithInterpreterLogger(l *slog.Logger) InterpreterOption {
	return func(c *InterpreterConfig) { c.Logger = l }
}

// OpenAIInterpreter calls any OpenAI-compatible /chat/completions endpoint.
type OpenAIInterpreter struct {
	cfg     InterpreterConfig
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewOpenAIInterpreter creates an interpreter. The API key is required
// unless the base URL points at a local server.
func NewOpenAIInterpreter(opts ...InterpreterOption) (*OpenAIInterpreter, error) {
	cfg := DefaultInterpreterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
		return nil, ErrNoAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAIInterpreter{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "voice.interpreter"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Interpret asks the model for an answer and its confidence. A reply that is
// not the requested JSON is used verbatim with confidence 0.5.
func (o *OpenAIInterpreter) Interpret(ctx context.Context, transcript string) (Interpretation, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: o.cfg.SystemPrompt},
			{Role: "user", Content: transcript},
		},
		Temperature:    o.cfg.Temperature,
		MaxTokens:      o.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Interpretation{}, fmt.Errorf("voice: marshal payload: %w", err)
	}

	resp, err := o.post(ctx, "/chat/completions", body)
	if err != nil {
		return Interpretation{}, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Interpretation{}, fmt.Errorf("voice: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Interpretation{}, ErrNoChoices
	}

	result := parseInterpretation(out.Choices[0].Message.Content)
	o.logger.Debug("interpreted", "model", out.Model, "confidence", result.Confidence, "latency", time.Since(start))
	return result, nil
}

func parseInterpretation(content string) Interpretation {
	content = strings.TrimSpace(content)
	var in Interpretation
	if err := json.Unmarshal([]byte(content), &in); err != nil || in.Text == "" {
		return Interpretation{Text: content, Confidence: 0.5}
	}
	if in.Confidence < 0 {
		in.Confidence = 0
	}
	if in.Confidence > 1 {
		in.Confidence = 1
	}
	return in
}

// post sends body, retrying network errors, 429 and 5xx responses.
func (o *OpenAIInterpreter) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("voice: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if o.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
		}

		resp, err := o.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("voice: request: %w", err)
			o.logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseAPIError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		o.logger.Warn("retrying request", "attempt", attempt+1, "status", apiErr.StatusCode)
	}

	return nil, lastErr
}

func parseAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}
