// Package discovery 是内容发现流的推荐引擎。
//
// 设计要点：
// - Pipeline-first: 一次 feed 请求由 Node 串联（Recall → Filter → Score → Rank → ReRank），每个阶段计时
// - 降级优先: 任意阶段失败退回按时间倒序的可见内容，缓存故障只影响性能
// - 依赖注入: KV 缓存、内容存储、向量索引、Embedding 服务都是接口，见 core 包
//
// 入口为 service.Discovery，配置见 config 包，事件消费见 events 包。
package discovery

import "github.com/rushteam/discovery/pipeline"

// 轻量 facade：便于直接 import 根包使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindScore  = pipeline.KindScore
	KindRank   = pipeline.KindRank
	KindReRank = pipeline.KindReRank
)
