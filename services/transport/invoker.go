// Package transport performs single, time-bounded upstream calls.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/services/providers"
)

const (
	DefaultTimeout           = 12 * time.Second
	DefaultMaxErrorBodyBytes = 4 << 10

	// maxReplyBytes caps successful reply bodies; completions are far smaller
	maxReplyBytes = 8 << 20
)

// Reply is a successful (2xx) upstream response
type Reply struct {
	Status  int
	Body    []byte
	Latency time.Duration
}

// Config holds invoker settings
type Config struct {
	Timeout           time.Duration
	MaxErrorBodyBytes int64
}

// Invoker sends one request per call, bounded by its own deadline.
// It never retries; retry policy belongs to the caller.
type Invoker struct {
	client     *http.Client
	timeout    time.Duration
	maxErrBody int64
	logger     *zap.Logger
}

// NewInvoker creates an invoker. A nil client uses a client with the default transport.
func NewInvoker(client *http.Client, cfg Config, logger *zap.Logger) *Invoker {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxErrorBodyBytes <= 0 {
		cfg.MaxErrorBodyBytes = DefaultMaxErrorBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Invoker{
		client:     client,
		timeout:    cfg.Timeout,
		maxErrBody: cfg.MaxErrorBodyBytes,
		logger:     logger,
	}
}

// Timeout returns the per-call bound
func (i *Invoker) Timeout() time.Duration {
	return i.timeout
}

// Invoke POSTs the wire request and classifies the outcome.
//
// Errors are one of *providers.TimeoutError, *providers.UpstreamError or
// *providers.TransportError. When ctx itself is done the context error is
// returned unwrapped so callers can stop the run.
func (i *Invoker) Invoke(ctx context.Context, provider string, req *providers.WireRequest) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, req.Endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &providers.TransportError{Provider: provider, Cause: err}
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, i.classify(ctx, callCtx, provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, i.maxErrBody))
		// drain a little more so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, i.maxErrBody)

		i.logger.Debug("upstream returned error status",
			zap.String("provider", provider),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
		)
		return nil, &providers.UpstreamError{Provider: provider, Status: resp.StatusCode, Body: body}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, i.classify(ctx, callCtx, provider, err)
	}

	return &Reply{
		Status:  resp.StatusCode,
		Body:    body,
		Latency: time.Since(start),
	}, nil
}

// classify maps a failed call onto the provider error taxonomy
func (i *Invoker) classify(parent, callCtx context.Context, provider string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &providers.TimeoutError{Provider: provider, After: i.timeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &providers.TimeoutError{Provider: provider, After: i.timeout}
	}

	return &providers.TransportError{Provider: provider, Cause: fmt.Errorf("post: %w", err)}
}
