// Package logger 是 zap 的薄封装：统一 key-value 风格，并在写出前脱敏。
//
// 日志中的 user_id / viewer_id / author_id 会被替换为带盐哈希，
// token / api_key / secret 等字段直接替换为 [REDACTED]。
package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 控制日志输出。
type Options struct {
	// Mode 为 "prod"/"production" 时输出 JSON，否则输出开发格式
	Mode string

	// Level 最低日志级别：debug / info / warn / error
	Level string

	// Redact 是否开启脱敏
	Redact bool

	// HashSalt 哈希用户 ID 时使用的盐
	HashSalt string
}

type Logger struct {
	sugar    *zap.SugaredLogger
	redact   bool
	hashSalt string
}

// New 按 Options 构建 Logger。
func New(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", opts.Level, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zl.Sugar(), redact: opts.Redact, hashSalt: opts.HashSalt}, nil
}

// NewNop 返回丢弃所有输出的 Logger，测试使用。
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// FromZap 包装已有的 zap.Logger。
func FromZap(zl *zap.Logger, redact bool) *Logger {
	return &Logger{sugar: zl.WithOptions(zap.AddCallerSkip(1)).Sugar(), redact: redact}
}

// Zap 返回底层 zap.Logger，用于需要强类型字段的地方。
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, l.sanitize(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, l.sanitize(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, l.sanitize(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, l.sanitize(keysAndValues)...)
}

// With 返回携带固定字段的子 Logger。
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		sugar:    l.sugar.With(l.sanitize(keysAndValues)...),
		redact:   l.redact,
		hashSalt: l.hashSalt,
	}
}

func (l *Logger) sanitize(kv []interface{}) []interface{} {
	if !l.redact || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		out = append(out, key, l.sanitizeValue(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	return out
}

func (l *Logger) sanitizeValue(key string, val interface{}) interface{} {
	switch {
	case isRedactKey(key):
		return "[REDACTED]"
	case isHashKey(key):
		if ids, ok := val.([]string); ok {
			hashed := make([]string, len(ids))
			for i, id := range ids {
				hashed[i] = l.hash(id)
			}
			return hashed
		}
		return l.hash(toString(val))
	}
	return val
}

func (l *Logger) hash(raw string) string {
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if l.hashSalt != "" {
		_, _ = h.Write([]byte(l.hashSalt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func isRedactKey(key string) bool {
	for _, s := range []string{"token", "authorization", "password", "secret", "api_key", "apikey"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func isHashKey(key string) bool {
	switch key {
	case "user_id", "user_ids", "viewer_id", "author_id":
		return true
	}
	return false
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
