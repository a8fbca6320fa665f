package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/pkg/utils"
)

// Client calls an OpenAI-compatible embeddings endpoint. Requests are
// batched up to the configured batch size and transient failures are retried
// with exponential backoff. Identical text always yields an identical vector
// for a given model, so results are cached by text.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	maxRetries int
	httpClient *http.Client
	cache      *Cache
	dimensions atomic.Int32
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an embeddings client from cfg. The API key is read from
// the environment variable named by cfg.APIKeyEnv; a missing key is a
// configuration error.
func NewClient(cfg *config.EmbeddingConfig, opts ...ClientOption) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		cache:      NewCache(cfg.CacheSize),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, preserving input order and length. Cached texts
// are not re-sent; the remainder is embedded in batches of the configured
// size.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	for start := 0; start < len(missing); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		input := make([]string, len(batch))
		for i, idx := range batch {
			input[i] = texts[idx]
		}
		embedded, err := c.embedWithRetry(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", start/c.batchSize+1, err)
		}
		for i, idx := range batch {
			utils.NormalizeL2(embedded[i])
			vectors[idx] = embedded[i]
			c.cache.Set(texts[idx], embedded[i])
		}
	}

	c.logger.Debug("embedded texts",
		zap.Int("total", len(texts)),
		zap.Int("from_cache", len(texts)-len(missing)),
	)
	return vectors, nil
}

// embedWithRetry sends one embeddings request, retrying rate limits, server
// errors, and network failures with exponential backoff.
func (c *Client) embedWithRetry(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("embedding request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("embedding service returned status %d", resp.StatusCode)
			retryAfter := resp.Header.Get("Retry-After")
			_ = resp.Body.Close()
			c.logger.Warn("embedding request rejected, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode),
			)
			if secs, err := strconv.Atoi(retryAfter); err == nil && attempt < c.maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(secs) * time.Second):
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, payload)
		}

		var out embeddingResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decode response: %w", err)
			continue
		}
		if len(out.Data) != len(input) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(out.Data), len(input))
		}

		vectors := make([][]float32, len(input))
		for _, d := range out.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("embedding service returned out-of-range index %d", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		if len(vectors[0]) > 0 {
			c.dimensions.CompareAndSwap(0, int32(len(vectors[0])))
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("embedding service unavailable after %d attempts: %w", c.maxRetries+1, lastErr)
}

// Dimensions returns the vector length, or 0 before the first request.
// Safe to call while embedding is in flight on other goroutines.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}

// Close is a no-op for the HTTP client.
func (c *Client) Close() error {
	return nil
}

// retryDelay returns the exponential backoff delay for the given attempt,
// capped at 5 seconds.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
