package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 错误分类：
//   - INVALID_INPUT：参数非法（空向量集合、负权重等），立即失败并返回给调用方
//   - NO_VALID_SIGNAL：偏好学习没有找到可用的 embedding，画像保持不变
//   - UPSTREAM_UNAVAILABLE：内容存储 / 向量索引 / embedding 服务故障，触发降级
//   - CACHE_UNAVAILABLE：缓存故障，只影响性能，不影响正确性
//
// 同一 Code 的 DomainError 之间 errors.Is 返回 true，因此哨兵错误可以直接用于判断：
//
//	if errors.Is(err, core.ErrUpstreamUnavailable) { ... }
type DomainError struct {
	Code    string // 错误代码（如 "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "vector", "profile"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按错误代码比较，忽略 Module 与 Message。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetDomainError 沿错误链查找 DomainError，找不到返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeInvalidInput        = "INVALID_INPUT"
	ErrorCodeNoValidSignal       = "NO_VALID_SIGNAL"
	ErrorCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrorCodeCacheUnavailable    = "CACHE_UNAVAILABLE"
	ErrorCodeNotFound            = "NOT_FOUND"
	ErrorCodeNotSupported        = "NOT_SUPPORTED"
)

// 模块名称常量
const (
	ModuleStore     = "store"
	ModuleVector    = "vector"
	ModuleVecMath   = "vecmath"
	ModuleEmbedding = "embedding"
	ModuleProfile   = "profile"
	ModuleRecall    = "recall"
	ModuleCache     = "cache"
	ModuleService   = "service"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrInvalidInput        = NewDomainError("", ErrorCodeInvalidInput, "invalid input")
	ErrNoValidSignal       = NewDomainError("", ErrorCodeNoValidSignal, "no valid signal")
	ErrUpstreamUnavailable = NewDomainError("", ErrorCodeUpstreamUnavailable, "upstream unavailable")
	ErrCacheUnavailable    = NewDomainError("", ErrorCodeCacheUnavailable, "cache unavailable")
	ErrNotSupported        = NewDomainError("", ErrorCodeNotSupported, "operation not supported")
)

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsNoValidSignal 检查错误是否为 NO_VALID_SIGNAL
func IsNoValidSignal(err error) bool { return hasCode(err, ErrorCodeNoValidSignal) }

// IsUpstreamUnavailable 检查错误是否为 UPSTREAM_UNAVAILABLE
func IsUpstreamUnavailable(err error) bool { return hasCode(err, ErrorCodeUpstreamUnavailable) }

// IsCacheUnavailable 检查错误是否为 CACHE_UNAVAILABLE
func IsCacheUnavailable(err error) bool { return hasCode(err, ErrorCodeCacheUnavailable) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

func hasCode(err error, code string) bool {
	if de := GetDomainError(err); de != nil {
		return de.Code == code
	}
	return false
}
