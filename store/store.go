// Package store 提供 core 中存储接口的实现：
//
//   - MemoryStore / RedisStore 实现 core.Store（KV 缓存）
//   - MemoryContentStore 实现 core.ContentStore 与 core.InteractionStore
//   - MemoryVectorService 实现 core.VectorDatabaseService
//   - BreakerContentStore / BreakerVectorService 为上游依赖增加熔断保护
//
// 示例：
//
//	var kv core.Store = store.NewMemoryStore()
//	var content core.ContentStore = store.NewBreakerContentStore(store.NewMemoryContentStore(), store.DefaultBreakerConfig("content"))
package store
