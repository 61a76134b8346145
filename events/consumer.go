// Package events 从 Kafka 消费互动与缓存失效事件。
//
// 消息为 JSON：
//
//	{"kind":"interaction","user_id":"u1","post_ids":["p1"],"interaction_types":["save"]}
//	{"kind":"invalidation","type":"post_update","content_id":"p1"}
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/pkg/logger"
)

const (
	KindInteraction  = "interaction"
	KindInvalidation = "invalidation"
)

// ErrUnknownKind 表示无法识别的消息类型，消息被跳过。
var ErrUnknownKind = errors.New("events: unknown message kind")

// Handler 是事件的处理方，*service.Discovery 实现了该接口。
type Handler interface {
	UpdateUserPreferences(ctx context.Context, userID string, postIDs []string, interactionTypes []string, weights map[string]float64) (*core.UserPreferenceProfile, error)
	InvalidateByEvent(ctx context.Context, ev cache.Event) (int, error)
}

// Message 是一条事件。失效事件的字段与 cache.Event 相同，直接平铺在消息中。
type Message struct {
	Kind             string             `json:"kind"`
	PostIDs          []string           `json:"post_ids,omitempty"`
	InteractionTypes []string           `json:"interaction_types,omitempty"`
	Weights          map[string]float64 `json:"weights,omitempty"`
	cache.Event
}

// Config 是消费者配置。
type Config struct {
	Brokers  []string
	Topic    string
	Group    string
	ClientID string
}

// Consumer 以消费组方式拉取消息，每批处理完成后提交 offset。
// 单条消息处理失败只记录日志，不阻塞后续消息。
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *logger.Logger
}

func NewConsumer(cfg Config, h Handler, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "events: brokers and topic are required")
	}
	if h == nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "events: handler is required")
	}
	if cfg.Group == "" {
		cfg.Group = "discovery"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "discovery-events"
	}
	if log == nil {
		log = logger.NewNop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUpstreamUnavailable, "events: create kafka client", err)
	}
	return &Consumer{client: client, handler: h, logger: log}, nil
}

// Run 阻塞消费直到 ctx 取消或 Close 被调用。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("kafka fetch failed", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			if err := Handle(ctx, c.handler, r.Value); err != nil {
				c.logger.Warn("event handling failed", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset, "error", err)
			}
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.Warn("kafka commit failed", "error", err)
		}
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}

// Handle 解码并分发一条消息。
//
// 互动消息先更新画像再按互动类型逐个失效缓存；画像没有可用信号时仍然执行失效。
func Handle(ctx context.Context, h Handler, value []byte) error {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("events: decode message: %w", err)
	}

	switch msg.Kind {
	case KindInteraction:
		if msg.UserID == "" || len(msg.PostIDs) == 0 {
			return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "events: interaction requires user_id and post_ids")
		}
		_, updateErr := h.UpdateUserPreferences(ctx, msg.UserID, msg.PostIDs, msg.InteractionTypes, msg.Weights)
		if updateErr != nil && core.IsNoValidSignal(updateErr) {
			updateErr = nil
		}
		var errs []error
		if updateErr != nil {
			errs = append(errs, updateErr)
		}
		seen := make(map[string]bool, len(msg.InteractionTypes))
		for _, action := range msg.InteractionTypes {
			if action == "" || seen[action] {
				continue
			}
			seen[action] = true
			ev := cache.Event{
				Type:      KindInteraction,
				Action:    action,
				UserID:    msg.UserID,
				ContentID: msg.PostIDs[0],
				Timestamp: msg.Timestamp,
			}
			if _, err := h.InvalidateByEvent(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)

	case KindInvalidation:
		if msg.Type == "" && msg.Action == "" {
			return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "events: invalidation requires type or action")
		}
		_, err := h.InvalidateByEvent(ctx, msg.Event)
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
}
