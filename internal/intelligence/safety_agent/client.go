// Package safety_agent talks to an OpenAI-compatible chat completion API to
// extract product data from page text, run the safety analysis against the
// knowledge base and summarise customer reviews.
package safety_agent

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Defaults applied by NewChatClient when a field is zero.
const (
	DefaultMaxTokens      = 4096
	DefaultRequestTimeout = 90 * time.Second
	DefaultRetryAfter     = 60 * time.Second
)

// ChatConfig configures the chat client.
type ChatConfig struct {
	APIKey         string
	BaseURL        string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	// RetryAfter is attached to rate-limit errors; providers do not expose the
	// header through the client library.
	RetryAfter time.Duration
}

// chatRequest is one system+user exchange.
type chatRequest struct {
	Operation string
	Model     string
	System    string
	User      string
	MaxTokens int
	JSONMode  bool
}

// completion is the first choice of a chat response.
type completion struct {
	Text         string
	FinishReason openai.FinishReason
	Usage        analysis.Usage
}

// Truncated reports whether the model stopped at the token limit.
func (c completion) Truncated() bool {
	return c.FinishReason == openai.FinishReasonLength
}

// Refused reports whether the provider filtered the answer.
func (c completion) Refused() bool {
	return c.FinishReason == openai.FinishReasonContentFilter
}

// ChatClient wraps go-openai with rate-limit mapping, usage capture and
// optional metrics.
type ChatClient struct {
	api     *openai.Client
	config  ChatConfig
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewChatClient builds a client. An empty API key is a configuration error.
func NewChatClient(cfg ChatConfig, metrics *prometheus.AppMetrics, logger logging.Logger) (*ChatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.ErrCodeAINotConfigured, "AI API key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	return &ChatClient{
		api:     openai.NewClientWithConfig(oc),
		config:  cfg,
		metrics: metrics,
		logger:  logger.Named("ai"),
	}, nil
}

// Complete sends req and returns the first choice. A missing choice yields an
// empty completion, not an error; the caller decides what empty output means.
func (c *ChatClient) Complete(ctx context.Context, req chatRequest) (completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.config.MaxTokens {
		maxTokens = c.config.MaxTokens
	}

	cr := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.JSONMode {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// Reasoning models reject max_tokens and a custom temperature.
	if isReasoningModel(req.Model) {
		cr.MaxCompletionTokens = maxTokens
	} else {
		cr.MaxTokens = maxTokens
		if c.config.Temperature > 0 {
			cr.Temperature = float32(c.config.Temperature)
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, cr)
	elapsed := time.Since(start)
	if err != nil {
		c.record(req, false, elapsed, analysis.Usage{})
		return completion{}, c.mapError(req, err)
	}

	out := completion{
		Usage: analysis.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Calls:        1,
		},
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.FinishReason = resp.Choices[0].FinishReason
	}
	c.record(req, true, elapsed, out.Usage)

	c.logger.Info("AI call completed",
		logging.String("operation", req.Operation),
		logging.String("model", req.Model),
		logging.Int("input_tokens", out.Usage.InputTokens),
		logging.Int("output_tokens", out.Usage.OutputTokens),
		logging.String("finish_reason", string(out.FinishReason)),
		logging.Duration("duration", elapsed),
	)
	return out, nil
}

func (c *ChatClient) record(req chatRequest, success bool, d time.Duration, u analysis.Usage) {
	if c.metrics == nil {
		return
	}
	prometheus.RecordLLMCall(c.metrics, req.Model, req.Operation, success, d, u.InputTokens, u.OutputTokens)
}

// mapError turns a 429 into a rate-limit error and everything else into an
// AppError of the operation's code.
func (c *ChatClient) mapError(req chatRequest, err error) error {
	if statusCode(err) == http.StatusTooManyRequests {
		c.logger.Warn("AI rate limit reached",
			logging.String("operation", req.Operation),
			logging.String("model", req.Model),
			logging.Duration("retry_after", c.config.RetryAfter))
		return errors.NewRateLimitError(c.config.RetryAfter, err)
	}
	c.logger.Error("AI call failed",
		logging.String("operation", req.Operation),
		logging.String("model", req.Model),
		logging.Err(err))
	return errors.Wrap(err, codeForOperation(req.Operation), "AI request failed")
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func codeForOperation(op string) errors.ErrorCode {
	switch op {
	case OperationAnalyze, OperationFetch:
		return errors.ErrCodeAIAnalysisFailed
	default:
		return errors.ErrCodeAIExtractionFailed
	}
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
