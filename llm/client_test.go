package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal provider pointed at an httptest server.
type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string                  { return f.name }
func (f *fakeProvider) BuildURL(baseURL string) string { return baseURL }
func (f *fakeProvider) SetHeaders(_ *http.Request)    {}

func (f *fakeProvider) BuildRequestBody(model, system, user string, _ *float64, _ int) ([]byte, error) {
	return []byte(`{"model":"` + model + `"}`), nil
}

func (f *fakeProvider) ParseResponse(body []byte, model string) (*Response, error) {
	return &Response{Content: string(body), Model: model}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("generated"))
	}))
	defer server.Close()

	RegisterProvider(&fakeProvider{name: "fake-retry"})
	client, err := NewClient(
		[]Endpoint{{Provider: "fake-retry", URL: server.URL, Model: "m"}},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Request{User: "prompt"})
	require.NoError(t, err)
	assert.Equal(t, "generated", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotEmpty(t, resp.RequestID)
}

func TestGenerateFatalErrorAbortsImmediately(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	RegisterProvider(&fakeProvider{name: "fake-fatal"})
	client, err := NewClient(
		[]Endpoint{{Provider: "fake-fatal", URL: server.URL, Model: "m"}},
		WithRetryConfig(fastRetry()))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{User: "prompt"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load(), "fatal errors must not be retried")
}

func TestGenerateFallsBackAcrossEndpoints(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("from fallback"))
	}))
	defer healthy.Close()

	RegisterProvider(&fakeProvider{name: "fake-fallback"})
	client, err := NewClient(
		[]Endpoint{
			{Provider: "fake-fallback", URL: broken.URL, Model: "primary"},
			{Provider: "fake-fallback", URL: healthy.URL, Model: "secondary"},
		},
		WithRetryConfig(RetryConfig{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffMultiplier: 1, MaxBackoff: time.Millisecond}))
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), Request{User: "prompt"})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
	assert.Equal(t, "secondary", resp.Model)
}

func TestGenerateHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	RegisterProvider(&fakeProvider{name: "fake-cancel"})
	client, err := NewClient(
		[]Endpoint{{Provider: "fake-cancel", URL: server.URL, Model: "m"}},
		WithRetryConfig(RetryConfig{
			MaxAttempts:       10,
			BackoffBase:       time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        time.Second,
		}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Generate(ctx, Request{User: "prompt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "cancellation must interrupt backoff")
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient([]Endpoint{{Provider: "no-such-provider", Model: "m"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewClientRequiresEndpoints(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
}

func TestGenerateRequiresUserPrompt(t *testing.T) {
	RegisterProvider(&fakeProvider{name: "fake-empty"})
	client, err := NewClient([]Endpoint{{Provider: "fake-empty", Model: "m"}})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}
