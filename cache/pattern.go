// Package cache 实现基于 glob 模式与事件规则的缓存失效。
//
// 缓存只是派生数据：失效失败只影响新鲜度，不影响结果正确性。
package cache

import (
	"regexp"
	"strings"

	"github.com/rushteam/discovery/core"
)

// GlobToRegexp 把 glob 模式转换为完整匹配的正则：
// '*' → '.*'，'?' → '.'，'{a,b}' → '(a|b)'，'\x' 匹配字面量 x，其余字符按字面量匹配。
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	depth := 0
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
			b.WriteString(regexp.QuoteMeta(string(r)))
		case r == '\\':
			escaped = true
		case r == '*':
			b.WriteString(".*")
		case r == '?':
			b.WriteByte('.')
		case r == '{':
			depth++
			b.WriteByte('(')
		case r == '}' && depth > 0:
			depth--
			b.WriteByte(')')
		case r == ',' && depth > 0:
			b.WriteByte('|')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		return nil, core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: trailing escape in pattern "+pattern)
	}
	if depth != 0 {
		return nil, core.NewDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: unbalanced braces in pattern "+pattern)
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleCache, core.ErrorCodeInvalidInput, "cache: invalid pattern "+pattern, err)
	}
	return re, nil
}

// MatchPattern 判断 key 是否匹配 glob 模式。
func MatchPattern(pattern, key string) (bool, error) {
	re, err := GlobToRegexp(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(key), nil
}

// EscapeGlob 转义 s 中的 glob 元字符，使其在模式中只匹配自身。
// 把外部输入（用户 ID、内容 ID）拼进模式前必须先转义。
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, globMeta) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(globMeta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

const globMeta = `*?{},\`

// literalPrefix 返回模式中第一个通配符之前的字面量前缀（已去掉转义），用于缩小 Keys 扫描范围。
func literalPrefix(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
			continue
		case r == '*' || r == '?' || r == '{':
			return b.String()
		}
		b.WriteRune(r)
	}
	return b.String()
}
