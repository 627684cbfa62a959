package models

import "time"

// 小贴士来源
const (
	TipSourceCatalog = "catalog" // 运营预置内容
	TipSourceAI      = "ai"      // 模型生成内容
)

// 固定话题分类，生成内容统一归入 CategoryGenerated
const (
	CategoryLanguage        = "language_development"
	CategoryScience         = "early_science_skills"
	CategoryLiteracy        = "literacy_foundations"
	CategorySocialEmotional = "social_emotional_learning"
	CategoryGenerated       = "generated"
)

// Tip 一条育儿建议
// 文本持久化后不可变，重新生成会产生新的Tip
type Tip struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Body        string    `db:"body" json:"body"`
	Details     string    `db:"details" json:"details,omitempty"`
	Category    string    `db:"category" json:"category"`
	Source      string    `db:"source" json:"source"` // catalog / ai
	Fingerprint string    `db:"fingerprint" json:"-"` // 归一化文本的内容指纹，用于生成内容去重
	Embedding   []float32 `db:"-" json:"-"`           // 嵌入向量，创建时计算一次，之后不变
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RankedTip 打分排序后的小贴士
type RankedTip struct {
	Tip           Tip     `json:"tip"`
	QuerySim      float64 `json:"query_sim"`       // 与查询的余弦相似度
	Personal      float64 `json:"personal"`        // 与用户偏好向量的余弦相似度
	Combined      float64 `json:"combined"`        // 混合得分
	IsStrongMatch bool    `json:"is_strong_match"` // 查询相似度超过强匹配阈值
}
