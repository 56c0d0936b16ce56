package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	custom := &http.Client{Timeout: time.Minute}
	c, err := NewClient("http://api.example.com", "key",
		WithHTTPClient(custom),
		WithTimeout(5*time.Second),
		WithRetryMax(4),
		WithRetryWait(time.Second, 3*time.Second),
		WithMaxRateLimitWait(0),
		WithUserAgent("cli/1"),
	)
	assert.NoError(t, err)
	assert.Same(t, custom, c.httpClient)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 4, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 3*time.Second, c.retryWaitMax)
	assert.Zero(t, c.maxRateLimitWait)
	assert.Equal(t, "cli/1", c.userAgent)
}

func TestOptions_InvalidValuesIgnored(t *testing.T) {
	c, err := NewClient("http://api.example.com", "key",
		WithHTTPClient(nil),
		WithRetryMax(-1),
		WithRetryWait(2*time.Second, time.Second),
		WithUserAgent(""),
		WithLogger(nil),
	)
	assert.NoError(t, err)
	assert.NotNil(t, c.httpClient)
	assert.Equal(t, 2, c.retryMax)
	assert.Equal(t, 2*time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
	assert.Contains(t, c.userAgent, "safescan-go-sdk/")
	assert.NotNil(t, c.logger)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	for attempt := 1; attempt <= 5; attempt++ {
		d := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond+75*time.Millisecond)
	}
}
