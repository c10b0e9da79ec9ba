package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"souqlive/app/config"
	"souqlive/app/model"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const minContentLength = 2

// Client talks to the external semantic memory service. Every call is
// gated by a shared circuit breaker; while the circuit is open both
// queries and writes are short-circuited, so the breaker is the single
// source of truth for "backend is degraded".
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	breaker    *Breaker
	baseURL    string
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Memory.CallTimeout(),
		},
		breaker: NewBreaker(cfg.Memory.CircuitFailureThreshold, cfg.Memory.CircuitCooldown()),
		baseURL: strings.TrimRight(cfg.Memory.BaseURL, "/"),
	}, nil
}

func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// Write archives a turn for later semantic retrieval. Degenerate content
// (empty, whitespace-only, below the minimum length) is skipped, never
// failed, so write storms for junk input cannot reach the service.
func (c *Client) Write(ctx context.Context, threadID string, turn model.Turn) WriteResult {
	content := strings.TrimSpace(turn.Content)

	if content == "" {
		slog.Debug("Skipped memory write", "thread_id", threadID, "reason", SkipReasonEmpty)
		return WriteResult{Status: StatusSkipped, Reason: SkipReasonEmpty}
	}

	if len([]rune(content)) < minContentLength {
		slog.Debug("Skipped memory write", "thread_id", threadID, "reason", SkipReasonTooShort)
		return WriteResult{Status: StatusSkipped, Reason: SkipReasonTooShort}
	}

	if !c.breaker.Allow() {
		slog.Debug("Skipped memory write", "thread_id", threadID, "reason", SkipReasonCircuitOpen)
		return WriteResult{Status: StatusSkipped, Reason: SkipReasonCircuitOpen}
	}

	req := writeRequest{
		ID:      uuid.NewString(),
		Role:    string(turn.Role),
		Content: content,
		Metadata: map[string]string{
			"domain":     turn.Domain,
			"created_at": turn.CreatedAt.UTC().Format(time.RFC3339),
		},
	}

	if err := c.call(ctx, http.MethodPost, c.memoriesURL(threadID), req, nil); err != nil {
		slog.Warn("Memory write failed", "thread_id", threadID, "error", err)
		return WriteResult{Status: StatusFailed, Reason: err.Error()}
	}

	return WriteResult{Status: StatusWritten}
}

// Query retrieves up to limit memory fragments for the thread, most
// relevant first. A new thread and an open circuit both yield an empty
// result, never an error.
func (c *Client) Query(ctx context.Context, threadID string, limit int) []Fragment {
	if !c.breaker.Allow() {
		return nil
	}

	u := c.memoriesURL(threadID) + "?limit=" + fmt.Sprint(limit)

	var resp queryResponse
	if err := c.call(ctx, http.MethodGet, u, nil, &resp); err != nil {
		slog.Warn("Memory query failed", "thread_id", threadID, "error", err)
		return nil
	}

	return resp.Fragments
}

// PutDocument stores a named JSON document, used for thread snapshots.
func (c *Client) PutDocument(ctx context.Context, key string, doc json.RawMessage) error {
	if !c.breaker.Allow() {
		return oops.Errorf("memory service circuit is open")
	}

	if err := c.call(ctx, http.MethodPut, c.documentURL(key), doc, nil); err != nil {
		return oops.Wrapf(err, "failed to put document %q", key)
	}

	return nil
}

// GetDocument reads a named JSON document back. A missing document is
// reported via the bool, not an error.
func (c *Client) GetDocument(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if !c.breaker.Allow() {
		return nil, false, oops.Errorf("memory service circuit is open")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Memory.CallTimeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL(key), nil)
	if err != nil {
		return nil, false, oops.Wrapf(err, "failed to create request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.Failure()
		return nil, false, oops.Wrapf(err, "failed to get document %q", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.breaker.Success()
		return nil, false, nil
	}

	if resp.StatusCode >= 300 {
		c.breaker.Failure()
		return nil, false, oops.Errorf("memory service returned %d for document %q", resp.StatusCode, key)
	}

	c.breaker.Success()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, oops.Wrapf(err, "failed to read document %q", key)
	}

	return data, true, nil
}

func (c *Client) call(ctx context.Context, method, u string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Memory.CallTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.Failure()
		return fmt.Errorf("memory service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.breaker.Failure()
		return fmt.Errorf("memory service returned %d", resp.StatusCode)
	}

	c.breaker.Success()

	if out != nil {
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Memory.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Memory.Token)
	}
}

func (c *Client) memoriesURL(threadID string) string {
	return c.baseURL + "/v1/threads/" + url.PathEscape(threadID) + "/memories"
}

func (c *Client) documentURL(key string) string {
	return c.baseURL + "/v1/documents/" + url.PathEscape(key)
}
