package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lox/showcase/internal/metrics"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "Showcase/1.0"

	// maxBody caps how much of an upstream response is read.
	maxBody = 1 << 20
)

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Status, e.Body)
}

// Recorder receives every upstream response that produced a body.
type Recorder interface {
	RecordLookup(service, endpoint string, status int, elapsed time.Duration, payload []byte) error
}

// Fetcher issues GET requests to upstream services. Each service gets its own
// circuit breaker; an open breaker fails the call immediately.
type Fetcher struct {
	client   *http.Client
	recorder Recorder

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = NewClient()
	}
	return &Fetcher{
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SetRecorder attaches a lookup recorder. Recording errors are logged only.
func (f *Fetcher) SetRecorder(r Recorder) {
	f.recorder = r
}

func (f *Fetcher) breaker(service string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     service,
		Interval: 1 * time.Minute,
		Timeout:  1 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A caller giving up says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("httputil: breaker %s %s -> %s", name, from, to)
		},
	})
	f.breakers[service] = cb
	return cb
}

// Get fetches url and returns the response body of a 2xx response.
func (f *Fetcher) Get(ctx context.Context, service, url string) ([]byte, error) {
	start := time.Now()
	result, err := f.breaker(service).Execute(func() (interface{}, error) {
		return f.do(ctx, service, url, start)
	})
	metrics.UpstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())

	if err != nil {
		status := "error"
		var se *StatusError
		switch {
		case errors.As(err, &se):
			status = strconv.Itoa(se.Status)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			status = "breaker_open"
			err = fmt.Errorf("%s: %w", service, err)
		}
		metrics.UpstreamCallsTotal.WithLabelValues(service, status).Inc()
		return nil, err
	}

	metrics.UpstreamCallsTotal.WithLabelValues(service, "ok").Inc()
	return result.([]byte), nil
}

func (f *Fetcher) do(ctx context.Context, service, url string, start time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", service, err)
	}

	if f.recorder != nil {
		if err := f.recorder.RecordLookup(service, url, resp.StatusCode, time.Since(start), body); err != nil {
			log.Printf("httputil: record %s lookup: %v", service, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Service: service, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GetJSON fetches url and decodes the 2xx response body into dst.
func (f *Fetcher) GetJSON(ctx context.Context, service, url string, dst any) error {
	body, err := f.Get(ctx, service, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", service, err)
	}
	return nil
}
