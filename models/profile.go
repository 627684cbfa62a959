package models

import "time"

// PreferenceProfile 用户偏好画像，每次交互写入后同步重算
type PreferenceProfile struct {
	UserID           string    `db:"user_id" json:"user_id"`
	EmbeddingRaw     string    `db:"embedding" json:"-"` // JSON编码的单位向量
	Embedding        []float32 `db:"-" json:"-"`
	InteractionCount int       `db:"interaction_count" json:"interaction_count"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SurveyResponse 用户问卷的一条选项记录
type SurveyResponse struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Section   string    `db:"section" json:"section"`
	Option    string    `db:"option_key" json:"option"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SurveyEmbedding 按问卷小节聚合出的偏好向量
type SurveyEmbedding struct {
	UserID       string    `db:"user_id" json:"user_id"`
	Section      string    `db:"section" json:"section"`
	EmbeddingRaw string    `db:"embedding" json:"-"`
	Embedding    []float32 `db:"-" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
