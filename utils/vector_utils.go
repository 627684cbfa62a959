package utils

import "math"

// CosineSimilarity 计算两个向量的余弦相似度，范围[-1,1]
// 维度不一致或任一向量为零向量时返回0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// NormalizeVector 将向量归一化为单位长度
// 零向量直接返回原值，避免除零
func NormalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// MeanVector 计算一组同维向量的分量均值
// 输入为空时返回nil
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue // 跳过维度不一致的脏数据
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(count))
	}
	return out
}

// ScaleAndSubtract 计算 a[i] - alpha*b[i]，用于从偏好向量中扣除不喜欢的方向
func ScaleAndSubtract(a, b []float32, alpha float64) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i]
		if i < len(b) {
			out[i] -= float32(alpha * float64(b[i]))
		}
	}
	return out
}

// BlendVectors 按权重混合两个向量：w*a + (1-w)*b
func BlendVectors(a, b []float32, w float64) []float32 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(w * float64(a[i]))
		if i < len(b) {
			out[i] += float32((1 - w) * float64(b[i]))
		}
	}
	return out
}
