// Package inference is a client for an Ollama-compatible text generation
// endpoint with cooperative cancellation and a closed failure taxonomy.
package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/UniQw/aiqueue/inference"

// Client performs blocking calls against one inference endpoint.
// It keeps no per-call state and is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport. The transport must honour request
// context cancellation for cooperative cancellation to close connections.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// WithTracer sets the tracer used for per-call spans. Defaults to the global
// OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewClient creates a Client. Zero-valued fields in cfg fall back to defaults,
// except Temperature and TransientRetries: zero is a meaningful value for both
// (deterministic sampling, no internal retry). Start from DefaultConfig to get
// the package defaults for them.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
				ResponseHeaderTimeout: cfg.ReadTimeout,
				// Every call owns its connection; cancelling the call closes the
				// socket and frees the backend's only inference slot.
				DisableKeepAlives: true,
			},
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config { return c.cfg }

// IsAvailable probes the tags endpoint with a short timeout. It never fails;
// any error is reported as unavailable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+TagsPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode == http.StatusOK
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// Generate sends prompt to the backend and returns the generated text.
// Cancelling ctx aborts the call at the next checkpoint and closes the
// underlying connection; the returned error then has KindCancelled.
// Connection failures are retried a few times internally; every other
// failure is returned as is so callers can apply their own retry policy.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "inference.generate", trace.WithAttributes(
		attribute.String("inference.model", c.cfg.Model),
		attribute.Int("inference.prompt_length", len(prompt)),
	))
	defer span.End()

	text, err := c.generate(ctx, prompt)
	if err != nil {
		span.SetAttributes(attribute.String("inference.error_kind", KindOf(err).String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("inference.response_tokens", EstimateTokens(text)))
	return text, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if err := c.validate(prompt); err != nil {
		return "", err
	}
	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature: c.cfg.Temperature,
			NumPredict:  c.cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", newError(KindValidation, "encode request", err)
	}

	for attempt := 0; ; attempt++ {
		text, err := c.generateOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		if KindOf(err) != KindConnection || attempt >= c.cfg.TransientRetries {
			return "", err
		}
		t := time.NewTimer(c.cfg.TransientBackoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", contextError(ctx)
		case <-t.C:
		}
	}
}

func (c *Client) validate(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return newError(KindValidation, "prompt cannot be empty", nil)
	}
	if n := utf8.RuneCountInString(prompt); n > c.cfg.MaxPromptLength {
		return newError(KindValidation, fmt.Sprintf("prompt too long: %d characters, maximum %d", n, c.cfg.MaxPromptLength), nil)
	}
	return nil
}

func (c *Client) generateOnce(parent context.Context, body []byte) (string, error) {
	if parent.Err() != nil {
		return "", contextError(parent)
	}
	ctx, cancel := context.WithTimeout(parent, c.cfg.ConnectTimeout+c.cfg.ReadTimeout)
	defer cancel()

	ct := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			if parent.Err() != nil {
				cancel()
			}
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, ct), http.MethodPost,
		c.cfg.Endpoint+GeneratePath, &checkedReader{ctx: parent, r: bytes.NewReader(body)})
	if err != nil {
		return "", newError(KindValidation, "build request", err)
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransport(parent, ctx, err)
	}
	defer resp.Body.Close()

	if parent.Err() != nil {
		return "", contextError(parent)
	}
	if err := statusError(resp); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	br := bufio.NewReader(resp.Body)
	for {
		if parent.Err() != nil {
			return "", contextError(parent)
		}
		line, rerr := br.ReadBytes('\n')
		buf.Write(line)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", classifyTransport(parent, ctx, rerr)
		}
	}

	text := ExtractResponse(buf.Bytes())
	if strings.TrimSpace(text) == "" {
		return "", newError(KindEmptyResponse, "empty response from backend", nil)
	}
	return text, nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	e := &Error{StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e.Kind, e.Msg = KindRateLimited, "rate limit exceeded"
	case http.StatusServiceUnavailable:
		e.Kind, e.Msg = KindServiceUnavailable, "service unavailable, backend might be busy"
	default:
		e.Kind, e.Msg = KindUnknownServer, fmt.Sprintf("backend returned status %d", resp.StatusCode)
	}
	if s := strings.TrimSpace(string(snippet)); s != "" {
		e.Msg += ": " + s
	}
	return e
}

// classifyTransport maps an error from the transport. The parent context
// decides between caller cancellation and timeouts; everything else that the
// transport reports is a connection failure.
func classifyTransport(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return contextError(parent)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, "read timed out", err)
	}
	switch KindOf(err) {
	case KindTimeout:
		return newError(KindTimeout, "timed out", err)
	default:
		return newError(KindConnection, "connection failed", err)
	}
}

func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "deadline exceeded", err)
	}
	return newError(KindCancelled, "request cancelled", err)
}

// checkedReader refuses to hand out request body bytes once ctx is done.
type checkedReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *checkedReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
