package core

import "context"

// EmbeddingProvider 把文本/图片描述转换为定长向量。
// 这是最昂贵的外部依赖，调用方应尽量缓存结果（见 embedding 包）。
type EmbeddingProvider interface {
	// Embed 计算单条内容的 embedding，可能出现瞬时故障
	Embed(ctx context.Context, content string) ([]float64, error)
}

// EmbeddingProviderFunc 允许把普通函数作为 EmbeddingProvider 使用。
type EmbeddingProviderFunc func(ctx context.Context, content string) ([]float64, error)

func (f EmbeddingProviderFunc) Embed(ctx context.Context, content string) ([]float64, error) {
	return f(ctx, content)
}
