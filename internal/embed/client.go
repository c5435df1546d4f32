package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/noterag/internal/config"
	nrerrors "github.com/Aman-CERP/noterag/internal/errors"
	"github.com/Aman-CERP/noterag/internal/store"
)

// ArkEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
// Batches are dispatched concurrently under a semaphore and fronted by
// the persistent embedding cache when one is attached.
type ArkEmbedder struct {
	client    *http.Client
	transport *http.Transport
	cfg       config.EmbeddingConfig
	apiKey    string
	cache     *store.EmbeddingCache
	sem       *semaphore.Weighted
	logger    *slog.Logger

	// retryDelay decides the backoff after a failed API call.
	// Swapped out in tests to keep retries fast.
	retryDelay func(attempt int, err error) time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*ArkEmbedder)(nil)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewArkEmbedder creates an embedder for the configured endpoint.
// cache may be nil to disable persistent caching.
func NewArkEmbedder(cfg config.EmbeddingConfig, apiKey string, cache *store.EmbeddingCache, logger *slog.Logger) *ArkEmbedder {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}

	// No http.Client.Timeout; each request carries its own context
	// deadline so a stuck call cannot outlive its budget.
	return &ArkEmbedder{
		client:     &http.Client{Transport: transport},
		transport:  transport,
		cfg:        cfg,
		apiKey:     apiKey,
		cache:      cache,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
}

// defaultRetryDelay backs off hardest on rate limits, briefly on
// timeouts, one second otherwise.
func defaultRetryDelay(attempt int, err error) time.Duration {
	switch nrerrors.GetCode(err) {
	case nrerrors.ErrCodeRateLimited:
		return time.Duration(attempt) * rateLimitDelayStep
	case nrerrors.ErrCodeNetworkTimeout:
		return timeoutRetryDelay
	default:
		return genericRetryDelay
	}
}

// Embed generates an embedding for a single query text.
func (e *ArkEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input order.
// Texts are split into batches of the configured size; batches run
// concurrently up to the concurrency limit.
func (e *ArkEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		offset := start

		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			vecs, err := e.embedBatchCached(gctx, batch)
			if err != nil {
				return err
			}
			copy(results[offset:offset+len(vecs)], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nrerrors.Wrap(nrerrors.ErrCodeEmbeddingFailed, err)
	}
	return results, nil
}

// embedBatchCached serves one batch, hitting the API only for texts
// the persistent cache does not already hold.
func (e *ArkEmbedder) embedBatchCached(ctx context.Context, batch []string) ([][]float32, error) {
	if e.cache == nil {
		return e.callAPI(ctx, batch)
	}

	cached, err := e.cache.GetBatch(ctx, batch, e.cfg.Model)
	if err != nil {
		// A broken cache degrades to direct API calls.
		e.logger.Warn("embedding_cache_read_failed", slog.String("error", err.Error()))
		return e.callAPI(ctx, batch)
	}

	var missTexts []string
	var missIndices []int
	for i, vec := range cached {
		if vec == nil {
			missTexts = append(missTexts, batch[i])
			missIndices = append(missIndices, i)
		}
	}

	if len(missTexts) == 0 {
		return cached, nil
	}

	fresh, err := e.callAPI(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetBatch(ctx, missTexts, fresh, e.cfg.Model); err != nil {
		e.logger.Warn("embedding_cache_write_failed", slog.String("error", err.Error()))
	}

	for j, idx := range missIndices {
		cached[idx] = fresh[j]
	}
	return cached, nil
}

// callAPI performs one embeddings request with retries. Rate limits
// back off hardest, timeouts briefly, anything else one second.
func (e *ArkEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := nrerrors.RetryConfig{
		MaxRetries: DefaultMaxRetries,
		DelayFunc:  e.retryDelay,
	}

	return nrerrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		return e.doRequest(ctx, texts)
	})
}

func (e *ArkEmbedder) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.cfg.APIBase+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nrerrors.New(nrerrors.ErrCodeNetworkTimeout, "embedding request timed out", err)
		}
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, nrerrors.New(nrerrors.ErrCodeRateLimited, "embedding endpoint rate limited", nil)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, nrerrors.New(nrerrors.ErrCodeUpstreamStatus,
			fmt.Sprintf("embedding endpoint returned %d: %s", resp.StatusCode, payload), nil)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts",
			len(parsed.Data), len(texts))
	}

	// The API may return vectors out of order; index is authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *ArkEmbedder) Dimensions() int {
	return e.cfg.Dimension
}

// ModelName returns the configured model identifier.
func (e *ArkEmbedder) ModelName() string {
	return e.cfg.Model
}

// Close drops idle connections. The embedding cache is owned by the
// caller and is not closed here.
func (e *ArkEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
