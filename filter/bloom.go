package filter

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

var (
	_ BloomFilterChecker = (*MemoryBloomFilter)(nil)
	_ BloomFilterWriter  = (*MemoryBloomFilter)(nil)
)

// MemoryBloomFilter 是进程内的布隆过滤器集合，按 key（每用户每天）分别维护。
// 不支持 TTL，适用于单实例部署与测试；多实例部署使用 ext/store/redis。
type MemoryBloomFilter struct {
	capacity          uint
	falsePositiveRate float64

	mu      sync.RWMutex
	filters map[string]*bloom.BloomFilter
}

// NewMemoryBloomFilter 创建布隆过滤器集合。
// capacity 是单个过滤器的预期容量，falsePositiveRate 是期望误判率（例如 0.01）。
func NewMemoryBloomFilter(capacity uint, falsePositiveRate float64) *MemoryBloomFilter {
	return &MemoryBloomFilter{
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
		filters:           make(map[string]*bloom.BloomFilter),
	}
}

func (m *MemoryBloomFilter) CheckInBloomFilter(_ context.Context, key string, itemID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bf, ok := m.filters[key]
	if !ok {
		return false, nil
	}
	return bf.TestString(itemID), nil
}

func (m *MemoryBloomFilter) BatchAddToBloomFilter(_ context.Context, key string, itemIDs []string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bf, ok := m.filters[key]
	if !ok {
		bf = bloom.NewWithEstimates(m.capacity, m.falsePositiveRate)
		m.filters[key] = bf
	}
	for _, id := range itemIDs {
		bf.AddString(id)
	}
	return nil
}
