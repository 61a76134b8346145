// Package vecmath 提供推荐链路使用的纯计算向量函数，不做任何 I/O。
package vecmath

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rushteam/discovery/core"
)

// CosineSimilarity 计算余弦相似度 dot(a,b) / (|a|·|b|)。
//
// 维度不一致时返回 0 并记录 warning，而不是返回错误：
// 调用方都在热路径上，可用性优先于严格性。任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		zap.L().Warn("cosine similarity dimension mismatch",
			zap.Int("dim_a", len(a)), zap.Int("dim_b", len(b)))
		return 0
	}
	if len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// WeightedCentroid 计算逐维加权平均。weights 为 nil 时使用均匀权重。
// vectors 为空、维度不一致、权重数量不匹配、权重为负或总和为 0 时返回 INVALID_INPUT。
func WeightedCentroid(vectors [][]float64, weights []float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, invalid("weighted centroid requires at least one vector")
	}
	if weights != nil && len(weights) != len(vectors) {
		return nil, invalid(fmt.Sprintf("weights length %d does not match vectors length %d", len(weights), len(vectors)))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, invalid("weighted centroid requires non-empty vectors")
	}

	sum := make([]float64, dim)
	var total float64
	for i, v := range vectors {
		if len(v) != dim {
			return nil, invalid(fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(v), dim))
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w < 0 {
			return nil, invalid(fmt.Sprintf("weight %d is negative", i))
		}
		for j, x := range v {
			sum[j] += w * x
		}
		total += w
	}
	if total == 0 {
		return nil, invalid("weights sum to zero")
	}

	for j := range sum {
		sum[j] /= total
	}
	return sum, nil
}

// Interpolate 返回 current*(1-rate) + target*rate，rate 被限制在 [0,1]。
func Interpolate(current, target []float64, rate float64) ([]float64, error) {
	if len(current) != len(target) {
		return nil, invalid(fmt.Sprintf("interpolate dimension mismatch: %d vs %d", len(current), len(target)))
	}
	rate = Clamp(rate, 0, 1)

	out := make([]float64, len(current))
	for i := range current {
		out[i] = current[i]*(1-rate) + target[i]*rate
	}
	return out, nil
}

// Normalize 返回 L2 归一化后的新向量；零向量原样复制返回。
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Norm 返回 L2 范数。
func Norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// Distance 返回欧氏距离，维度不一致时返回 +Inf。
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// Clamp 把 x 限制在 [lo, hi]。
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func invalid(msg string) error {
	return core.NewDomainError(core.ModuleVecMath, core.ErrorCodeInvalidInput, "vecmath: "+msg)
}
