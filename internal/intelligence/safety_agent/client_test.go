package safety_agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// fakeLLM is an OpenAI-compatible chat completion endpoint.
type fakeLLM struct {
	server *httptest.Server

	mu        sync.Mutex
	status    int
	errorBody string
	content   string
	finish    string
	requests  []openai.ChatCompletionRequest
	paths     []string
}

func newFakeLLM(t *testing.T) *fakeLLM {
	f := &fakeLLM{status: http.StatusOK, finish: "stop"}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req openai.ChatCompletionRequest
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.paths = append(f.paths, r.URL.Path)
	status, errBody, content, finish := f.status, f.errorBody, f.content, f.finish
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(errBody))
		return
	}
	resp := map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   req.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 45, "total_tokens": 165},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeLLM) reply(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.content, f.finish = http.StatusOK, content, "stop"
}

func (f *fakeLLM) replyFinish(content, finish string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.content, f.finish = http.StatusOK, content, finish
}

func (f *fakeLLM) fail(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.errorBody = status, body
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) lastRequest(t *testing.T) openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

const rateLimitBody = `{"error":{"message":"Rate limit reached for requests","type":"requests","param":null,"code":"rate_limit_exceeded"}}`

const serverErrorBody = `{"error":{"message":"The server had an error","type":"server_error","param":null,"code":null}}`

func newTestChat(t *testing.T, f *fakeLLM, metrics *prometheus.AppMetrics) *ChatClient {
	c, err := NewChatClient(ChatConfig{
		APIKey:         "sk-test",
		BaseURL:        f.server.URL + "/v1/",
		MaxTokens:      4096,
		RequestTimeout: 5 * time.Second,
		RetryAfter:     45 * time.Second,
	}, metrics, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestNewChatClient_RequiresAPIKey(t *testing.T) {
	_, err := NewChatClient(ChatConfig{APIKey: "  "}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAINotConfigured))
}

func TestNewChatClient_Defaults(t *testing.T) {
	c, err := NewChatClient(ChatConfig{APIKey: "sk-test"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, c.config.MaxTokens)
	assert.Equal(t, DefaultRequestTimeout, c.config.RequestTimeout)
	assert.Equal(t, DefaultRetryAfter, c.config.RetryAfter)
}

func TestComplete_CapturesTextAndUsage(t *testing.T) {
	f := newFakeLLM(t)
	f.reply(`{"ok":true}`)
	c := newTestChat(t, f, nil)

	out, err := c.Complete(context.Background(), chatRequest{
		Operation: OperationExtractProduct,
		Model:     "gpt-4o-mini",
		System:    "system text",
		User:      "user text",
		MaxTokens: 2048,
		JSONMode:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Text)
	assert.Equal(t, 120, out.Usage.InputTokens)
	assert.Equal(t, 45, out.Usage.OutputTokens)
	assert.Equal(t, 1, out.Usage.Calls)
	assert.False(t, out.Truncated())
	assert.False(t, out.Refused())

	req := f.lastRequest(t)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Zero(t, req.MaxCompletionTokens)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "system text", req.Messages[0].Content)
	assert.Equal(t, "user text", req.Messages[1].Content)

	f.mu.Lock()
	assert.Equal(t, "/v1/chat/completions", f.paths[0])
	f.mu.Unlock()
}

func TestComplete_CapsMaxTokensAtConfig(t *testing.T) {
	f := newFakeLLM(t)
	f.reply("{}")
	c := newTestChat(t, f, nil)

	_, err := c.Complete(context.Background(), chatRequest{Model: "gpt-4o", MaxTokens: 100000})
	require.NoError(t, err)
	assert.Equal(t, 4096, f.lastRequest(t).MaxTokens)
	assert.Nil(t, f.lastRequest(t).ResponseFormat)
}

func TestComplete_ReasoningModelUsesMaxCompletionTokens(t *testing.T) {
	f := newFakeLLM(t)
	f.reply("{}")
	c := newTestChat(t, f, nil)

	_, err := c.Complete(context.Background(), chatRequest{Model: "o3-mini", MaxTokens: 1024})
	require.NoError(t, err)
	req := f.lastRequest(t)
	assert.Equal(t, 1024, req.MaxCompletionTokens)
	assert.Zero(t, req.MaxTokens)
}

func TestComplete_TruncatedAndRefused(t *testing.T) {
	f := newFakeLLM(t)
	c := newTestChat(t, f, nil)

	f.replyFinish(`{"product_name": "Cut`, "length")
	out, err := c.Complete(context.Background(), chatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, out.Truncated())

	f.replyFinish("", "content_filter")
	out, err = c.Complete(context.Background(), chatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, out.Refused())
}

func TestComplete_RateLimitMapsToRateLimitError(t *testing.T) {
	f := newFakeLLM(t)
	f.fail(http.StatusTooManyRequests, rateLimitBody)
	c := newTestChat(t, f, nil)

	_, err := c.Complete(context.Background(), chatRequest{Operation: OperationAnalyze, Model: "gpt-4o"})
	require.Error(t, err)
	rl, ok := errors.AsRateLimit(err)
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, rl.RetryAfter)
}

func TestComplete_ServerErrorUsesOperationCode(t *testing.T) {
	f := newFakeLLM(t)
	f.fail(http.StatusInternalServerError, serverErrorBody)
	c := newTestChat(t, f, nil)

	_, err := c.Complete(context.Background(), chatRequest{Operation: OperationExtractProduct, Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIExtractionFailed))
	_, limited := errors.AsRateLimit(err)
	assert.False(t, limited)

	_, err = c.Complete(context.Background(), chatRequest{Operation: OperationFetch, Model: "gpt-4o-search-preview"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAIAnalysisFailed))
}

func TestComplete_RecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test", Subsystem: "agent"}, logging.NewNopLogger())
	require.NoError(t, err)
	metrics := prometheus.NewAppMetrics(collector)

	f := newFakeLLM(t)
	f.reply("{}")
	c := newTestChat(t, f, metrics)

	_, err = c.Complete(context.Background(), chatRequest{Operation: OperationReviews, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `test_agent_llm_requests_total{model="gpt-4o-mini",operation="extract_reviews",status="success"} 1`)
	assert.Contains(t, body, `test_agent_llm_tokens_total{direction="input",model="gpt-4o-mini"} 120`)
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("o1-preview"))
	assert.True(t, isReasoningModel("o4-mini"))
	assert.True(t, isReasoningModel("gpt-5"))
	assert.False(t, isReasoningModel("gpt-4o"))
}
