// Package api is the JSON transport to the product review backend.
//
// Every request carries the current credential as a bearer header when one is
// present. A 401 on a request that carried a credential clears that credential
// with reason "unauthorized"; this is the only place a leaf call mutates
// shared state, and it is how a rejection anywhere reaches every component
// subscribed to the credential store.
package api

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

	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/credential"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 8 << 20
)

// Credentials is the part of the credential store the transport needs.
type Credentials interface {
	Get() (string, bool)
	ClearIf(ctx context.Context, token string, reason credential.Reason) (bool, error)
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // ignored when HTTPClient is set
	Logger     *zap.Logger
}

// Client issues requests against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
	logger  *zap.Logger
}

// New creates a new client. creds may be nil for a client that never sends
// a credential.
func New(cfg Config, creds Credentials) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		creds:   creds,
		logger:  logger,
	}, nil
}

// call describes one request.
type call struct {
	method string
	path   string
	body   any
	out    any
	// public calls never send the credential and never trigger the
	// unauthorized cascade.
	public bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	op := cl.method + " " + cl.path

	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var token string
	var sentToken bool
	if !cl.public && c.creds != nil {
		token, sentToken = c.creds.Get()
		if sentToken {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return &shopper.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &shopper.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &shopper.HTTPStatusError{
			Status:  resp.StatusCode,
			Message: ErrorMessage(body, resp.StatusCode),
		}
		if resp.StatusCode == http.StatusUnauthorized && sentToken {
			c.rejectCredential(ctx, op, token)
		}
		return statusErr
	}

	if msg, ok := errorEnvelope(body); ok {
		return &shopper.HTTPStatusError{Status: resp.StatusCode, Message: msg}
	}

	if cl.out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, cl.out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (c *Client) rejectCredential(ctx context.Context, op, token string) {
	// The cascade must happen even if the caller's context is already done.
	clearCtx := context.WithoutCancel(ctx)
	cleared, err := c.creds.ClearIf(clearCtx, token, credential.ReasonUnauthorized)
	if err != nil {
		c.logger.Warn("failed to clear rejected credential", zap.String("op", op), zap.Error(err))
	}
	if cleared {
		c.logger.Info("credential rejected by server", zap.String("op", op))
	}
}

// ErrorMessage normalizes an error payload into one string. The backend sends
// plain strings, {"detail": ...}, {"message": ...}, {"error": ...} or
// validation lists; anything else falls back to the raw text or status text.
func ErrorMessage(body []byte, status int) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return http.StatusText(status)
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return truncate(string(trimmed), 512)
	}
	if msg := messageFrom(v); msg != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return truncate(string(trimmed), 512)
}

func messageFrom(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"message", "detail", "error", "msg"} {
			if inner, ok := t[key]; ok && inner != nil {
				if msg := messageFrom(inner); msg != "" {
					return msg
				}
			}
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if msg := messageFrom(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// errorEnvelope detects a 2xx body of the form {"error": ...}.
func errorEnvelope(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return "", false
	}
	if len(envelope.Error) == 0 || string(envelope.Error) == "null" {
		return "", false
	}
	var v any
	if err := json.Unmarshal(envelope.Error, &v); err != nil {
		return "", false
	}
	msg := messageFrom(v)
	if msg == "" {
		msg = "request failed"
	}
	return msg, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsStatus reports whether err is an HTTPStatusError with the given status.
func IsStatus(err error, status int) bool {
	var statusErr *shopper.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.Status == status
}
