package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/discovery/core"
)

// BreakerConfig 是熔断器配置。
type BreakerConfig struct {
	Name string

	// MaxRequests 是半开状态允许通过的请求数
	MaxRequests uint32

	// Interval 是关闭状态下计数清零的周期
	Interval time.Duration

	// Timeout 是打开状态持续多久后进入半开
	Timeout time.Duration

	// FailureThreshold 是触发熔断的连续失败次数
	FailureThreshold uint32

	// OnStateChange 状态变化回调（日志/监控）
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig 返回默认配置：连续 5 次失败打开，30 秒后半开。
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// NewCircuitBreaker 按配置创建熔断器。NOT_FOUND 与 INVALID_INPUT 不计入失败。
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[interface{}] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsNotFound(err) || core.IsInvalidInput(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: cfg.OnStateChange,
	})
}

// execute 执行 fn，并把熔断与底层故障统一映射为 UPSTREAM_UNAVAILABLE。
func execute[T any](cb *gobreaker.CircuitBreaker[interface{}], module string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if core.IsNotFound(err) || core.IsInvalidInput(err) {
			return zero, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, core.WrapDomainError(module, core.ErrorCodeUpstreamUnavailable,
				fmt.Sprintf("%s: circuit %s", cb.Name(), cb.State()), err)
		}
		if core.IsUpstreamUnavailable(err) {
			return zero, err
		}
		return zero, core.WrapDomainError(module, core.ErrorCodeUpstreamUnavailable, cb.Name()+": request failed", err)
	}
	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// BreakerContentStore 为 ContentStore 增加熔断保护。
type BreakerContentStore struct {
	next core.ContentStore
	cb   *gobreaker.CircuitBreaker[interface{}]
}

var _ core.ContentStore = (*BreakerContentStore)(nil)

func NewBreakerContentStore(next core.ContentStore, cfg BreakerConfig) *BreakerContentStore {
	if cfg.Name == "" {
		cfg.Name = "content-store"
	}
	return &BreakerContentStore{next: next, cb: NewCircuitBreaker(cfg)}
}

// State 返回熔断器状态，用于监控。
func (b *BreakerContentStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerContentStore) QueryVisibleItems(ctx context.Context, viewerID string, filter core.ItemFilter) ([]*core.ContentItem, error) {
	return execute(b.cb, core.ModuleStore, func() ([]*core.ContentItem, error) {
		return b.next.QueryVisibleItems(ctx, viewerID, filter)
	})
}

func (b *BreakerContentStore) GetItem(ctx context.Context, id string) (*core.ContentItem, error) {
	return execute(b.cb, core.ModuleStore, func() (*core.ContentItem, error) {
		return b.next.GetItem(ctx, id)
	})
}

func (b *BreakerContentStore) GetItems(ctx context.Context, ids []string) ([]*core.ContentItem, error) {
	return execute(b.cb, core.ModuleStore, func() ([]*core.ContentItem, error) {
		return b.next.GetItems(ctx, ids)
	})
}

// BreakerVectorService 为向量数据库增加熔断保护。
type BreakerVectorService struct {
	next core.VectorDatabaseService
	cb   *gobreaker.CircuitBreaker[interface{}]
}

var _ core.VectorDatabaseService = (*BreakerVectorService)(nil)

func NewBreakerVectorService(next core.VectorDatabaseService, cfg BreakerConfig) *BreakerVectorService {
	if cfg.Name == "" {
		cfg.Name = "vector-index"
	}
	return &BreakerVectorService{next: next, cb: NewCircuitBreaker(cfg)}
}

func (b *BreakerVectorService) State() gobreaker.State { return b.cb.State() }

func (b *BreakerVectorService) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	return execute(b.cb, core.ModuleVector, func() (*core.VectorSearchResult, error) {
		return b.next.Search(ctx, req)
	})
}

func (b *BreakerVectorService) Insert(ctx context.Context, req *core.VectorInsertRequest) error {
	_, err := execute(b.cb, core.ModuleVector, func() (struct{}, error) {
		return struct{}{}, b.next.Insert(ctx, req)
	})
	return err
}

func (b *BreakerVectorService) Update(ctx context.Context, req *core.VectorUpdateRequest) error {
	_, err := execute(b.cb, core.ModuleVector, func() (struct{}, error) {
		return struct{}{}, b.next.Update(ctx, req)
	})
	return err
}

func (b *BreakerVectorService) Query(ctx context.Context, req *core.VectorQueryRequest) ([]core.VectorSearchItem, error) {
	return execute(b.cb, core.ModuleVector, func() ([]core.VectorSearchItem, error) {
		return b.next.Query(ctx, req)
	})
}

func (b *BreakerVectorService) Delete(ctx context.Context, req *core.VectorDeleteRequest) error {
	_, err := execute(b.cb, core.ModuleVector, func() (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, req)
	})
	return err
}

// 集合管理属于运维操作，不经过熔断器。

func (b *BreakerVectorService) CreateCollection(ctx context.Context, req *core.VectorCreateCollectionRequest) error {
	return b.next.CreateCollection(ctx, req)
}

func (b *BreakerVectorService) DropCollection(ctx context.Context, collection string) error {
	return b.next.DropCollection(ctx, collection)
}

func (b *BreakerVectorService) HasCollection(ctx context.Context, collection string) (bool, error) {
	return b.next.HasCollection(ctx, collection)
}

func (b *BreakerVectorService) Close() error {
	return b.next.Close()
}
