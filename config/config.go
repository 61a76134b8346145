// Package config 加载服务配置。
//
// 优先级从低到高：内置默认值、YAML 文件、环境变量。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/discovery/cache"
	"github.com/rushteam/discovery/core"
	"github.com/rushteam/discovery/embedding"
	"github.com/rushteam/discovery/service"
)

// PathEnvVar 指定配置文件路径，Load 的参数为空时使用。
const PathEnvVar = "DISCOVERY_CONFIG"

type Config struct {
	Service   service.Options       `yaml:"service"`
	Redis     RedisConfig           `yaml:"redis"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	Milvus    MilvusConfig          `yaml:"milvus"`
	Embedding embedding.HTTPOptions `yaml:"embedding"`
	Cache     CacheConfig           `yaml:"cache"`
	Bloom     BloomConfig           `yaml:"bloom"`
	Breaker   BreakerConfig         `yaml:"breaker"`
	Log       LogConfig             `yaml:"log"`

	// MetricsAddr 为空时不暴露 /metrics
	MetricsAddr string `yaml:"metrics_addr"`
}

// RedisConfig 中 DB 放缓存，RelationsDB 放拉黑 / 关注 / 已看，两者不能相同。
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	RelationsDB int    `yaml:"relations_db"`
	ScanCount   int64  `yaml:"scan_count"`
}

// KafkaConfig 为空 Brokers 时不启动事件消费。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Group   string   `yaml:"group"`
}

// MilvusConfig 为空 Address 时使用进程内向量索引。
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type CacheConfig struct {
	// RulesPath 失效规则文件，为空时使用内置规则；设置后文件修改会热加载
	RulesPath         string `yaml:"rules_path"`
	InvalidationBatch int    `yaml:"invalidation_batch"`
}

type BloomConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Capacity          uint    `yaml:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Mode     string `yaml:"mode"`
	Level    string `yaml:"level"`
	Redact   bool   `yaml:"redact"`
	HashSalt string `yaml:"hash_salt"`
}

// Default 返回内置默认配置。
func Default() Config {
	return Config{
		Service: service.DefaultOptions(),
		Redis:   RedisConfig{Addr: "localhost:6379", RelationsDB: 1, ScanCount: 500},
		Kafka:   KafkaConfig{Topic: "discovery.events", Group: "discovery"},
		Milvus:  MilvusConfig{Database: "default"},
		Embedding: embedding.HTTPOptions{
			Path:       "/v1/embeddings",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			Backoff:    200 * time.Millisecond,
			Dimension:  1024,
		},
		Cache:   CacheConfig{InvalidationBatch: cache.DefaultBatchSize},
		Bloom:   BloomConfig{Capacity: 100000, FalsePositiveRate: 0.01},
		Breaker: BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second},
		Log:     LogConfig{Mode: "development", Level: "info", Redact: true},
	}
}

// envKeys 是支持的环境变量到配置路径的映射，其余变量忽略。
var envKeys = map[string]string{
	"DISCOVERY_REDIS_ADDR":         "redis.addr",
	"DISCOVERY_REDIS_PASSWORD":     "redis.password",
	"DISCOVERY_KAFKA_BROKERS":      "kafka.brokers",
	"DISCOVERY_KAFKA_TOPIC":        "kafka.topic",
	"DISCOVERY_MILVUS_ADDR":        "milvus.address",
	"DISCOVERY_EMBEDDING_BASE_URL": "embedding.base_url",
	"DISCOVERY_EMBEDDING_API_KEY":  "embedding.api_key",
	"DISCOVERY_EMBEDDING_MODEL":    "embedding.model",
	"DISCOVERY_CACHE_RULES":        "cache.rules_path",
	"DISCOVERY_LOG_MODE":           "log.mode",
	"DISCOVERY_LOG_LEVEL":          "log.level",
	"DISCOVERY_METRICS_ADDR":       "metrics_addr",
	"LOG_REDACTION_ENABLED":        "log.redact",
}

// sliceKeys 在环境变量中以逗号分隔
var sliceKeys = []string{"kafka.brokers"}

// Load 读取配置并校验。path 为空时使用 DISCOVERY_CONFIG，都为空时只用默认值与环境变量。
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(key string) string { return envKeys[key] }), nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}
	if err := splitSlices(k); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitSlices(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}

// Validate 校验取值范围，错误为 INVALID_INPUT。零值字段由各组件补默认值，不视为错误。
func (c Config) Validate() error {
	s := c.Service
	if err := s.DefaultWeights.Validate(); err != nil {
		return err
	}
	switch {
	case s.DefaultLimit < 0, s.MaxLimit < 0, s.CandidateMultiplier < 0:
		return invalid("limits must not be negative")
	case s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit:
		return invalid(fmt.Sprintf("default_limit %d exceeds max_limit %d", s.DefaultLimit, s.MaxLimit))
	case s.SimilarMinSimilarity < 0 || s.SimilarMinSimilarity > 1:
		return invalid("similar_min_similarity must be within [0,1]")
	case s.Profile.LearningRate < 0 || s.Profile.LearningRate > 1:
		return invalid("profile.learning_rate must be within (0,1]")
	case s.Dimension < 0:
		return invalid("dimension must not be negative")
	case s.Metric != "" && !core.ValidateVectorMetric(s.Metric):
		return invalid(fmt.Sprintf("unsupported metric %q", s.Metric))
	case c.Cache.InvalidationBatch < 0:
		return invalid("cache.invalidation_batch must not be negative")
	case c.Bloom.Enabled && (c.Bloom.FalsePositiveRate <= 0 || c.Bloom.FalsePositiveRate >= 1):
		return invalid("bloom.false_positive_rate must be within (0,1)")
	case c.Redis.RelationsDB == c.Redis.DB:
		return invalid("redis.relations_db must differ from redis.db")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return invalid("kafka.topic is required when brokers are set")
	}
	return nil
}

func invalid(msg string) error {
	return core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "config: "+msg)
}
