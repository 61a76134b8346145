// Package embedding 封装 embedding 服务边界：HTTP 调用、重试、进程内缓存与内容向量解析。
package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/discovery/core"
)

// HTTPOptions 是 OpenAI 兼容 embedding 接口的配置。
type HTTPOptions struct {
	BaseURL string        `yaml:"base_url"`
	Path    string        `yaml:"path"` // 默认 /v1/embeddings
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries 瞬时故障（网络错误 / 429 / 5xx）的最大重试次数
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`

	// Dimension 期望的向量维度，0 表示不校验
	Dimension int `yaml:"dimension"`
}

// HTTPError 是非 2xx 响应。
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("embedding http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPProvider 调用 OpenAI 兼容的 /v1/embeddings 接口，实现 core.EmbeddingProvider。
type HTTPProvider struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPProvider 创建 HTTP embedding provider，client 为 nil 时使用 http.DefaultClient。
func NewHTTPProvider(opts HTTPOptions, client *http.Client) (*HTTPProvider, error) {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeInvalidInput, "embedding: base url is required")
	}
	if opts.Path == "" {
		opts.Path = "/v1/embeddings"
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{opts: opts, client: client}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed 计算单条内容的 embedding。
func (p *HTTPProvider) Embed(ctx context.Context, content string) ([]float64, error) {
	out, err := p.EmbedBatch(ctx, []string{content})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch 一次请求计算多条内容，返回顺序与 inputs 一致。
func (p *HTTPProvider) EmbedBatch(ctx context.Context, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return [][]float64{}, nil
	}
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeInvalidInput, "embedding: empty content")
		}
	}

	var resp embeddingsResponse
	if err := p.doWithRetry(ctx, embeddingsRequest{Model: p.opts.Model, Input: inputs}, &resp); err != nil {
		return nil, core.WrapDomainError(core.ModuleEmbedding, core.ErrorCodeUpstreamUnavailable, "embedding: request failed", err)
	}

	out := make([][]float64, len(inputs))
	for i, d := range resp.Data {
		idx := d.Index
		// 部分服务不返回 index，按顺序对应
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		if idx < len(out) {
			out[idx] = d.Embedding
		}
	}
	for i, vec := range out {
		if len(vec) == 0 {
			return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeUpstreamUnavailable,
				fmt.Sprintf("embedding: missing vector for input %d", i))
		}
		if p.opts.Dimension > 0 && len(vec) != p.opts.Dimension {
			return nil, core.NewDomainError(core.ModuleEmbedding, core.ErrorCodeUpstreamUnavailable,
				fmt.Sprintf("embedding: dimension %d, want %d", len(vec), p.opts.Dimension))
		}
	}
	return out, nil
}

func (p *HTTPProvider) doWithRetry(ctx context.Context, body any, out any) error {
	var err error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.opts.Backoff * time.Duration(1<<(attempt-1))):
			}
		}
		err = p.doJSON(ctx, body, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if he, ok := err.(*HTTPError); ok && !he.retryable() {
			return err
		}
	}
	return err
}

func (p *HTTPProvider) doJSON(ctx context.Context, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	reqCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.opts.BaseURL+p.opts.Path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
