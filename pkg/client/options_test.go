package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	logger := &testLogger{}
	c := &Client{retryMax: 3, retryWaitMin: time.Second, retryWaitMax: 2 * time.Second, userAgent: "ua"}

	for _, opt := range []Option{
		WithHTTPClient(hc),
		WithAPIKey("k"),
		WithLogger(logger),
		WithRetryMax(1),
		WithUserAgent("custom/1"),
	} {
		opt(c)
	}
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, "k", c.apiKey)
	assert.Same(t, logger, c.logger)
	assert.Equal(t, 1, c.retryMax)
	assert.Equal(t, "custom/1", c.userAgent)

	WithHTTPClient(nil)(c)
	WithLogger(nil)(c)
	WithRetryMax(-1)(c)
	WithUserAgent("")(c)
	assert.Same(t, hc, c.httpClient)
	assert.Same(t, logger, c.logger)
	assert.Equal(t, 1, c.retryMax)
	assert.Equal(t, "custom/1", c.userAgent)
}

func TestWithRetryWait(t *testing.T) {
	tests := []struct {
		name               string
		min, max           time.Duration
		wantMin, wantMax   time.Duration
	}{
		{"valid range", time.Second, 5 * time.Second, time.Second, 5 * time.Second},
		{"equal", 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second},
		{"zero min ignored", 0, 5 * time.Second, 100 * time.Millisecond, 200 * time.Millisecond},
		{"max below min", 5 * time.Second, 2 * time.Second, 5 * time.Second, 200 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 200 * time.Millisecond}
			WithRetryWait(tt.min, tt.max)(c)
			assert.Equal(t, tt.wantMin, c.retryWaitMin)
			assert.Equal(t, tt.wantMax, c.retryWaitMax)
		})
	}
}
