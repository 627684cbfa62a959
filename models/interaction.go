package models

import "time"

// 交互类型
const (
	InteractionLike    = "like"
	InteractionDislike = "dislike"
	InteractionSave    = "save"
	InteractionUnsave  = "unsave"
)

// InteractionRemovals 记录新交互写入前需要删除的旧交互类型
// like/dislike互斥，unsave只撤销save，用显式状态转移表表达这条不变量
var InteractionRemovals = map[string][]string{
	InteractionLike:    {InteractionDislike},
	InteractionDislike: {InteractionLike},
	InteractionSave:    {},
	InteractionUnsave:  {InteractionSave},
}

// IsValidInteractionType 检查交互类型是否合法
func IsValidInteractionType(t string) bool {
	_, ok := InteractionRemovals[t]
	return ok
}

// Interaction 用户与小贴士之间的一次交互
// 只插入或删除，不更新
type Interaction struct {
	UserID    string    `db:"user_id" json:"user_id"`
	TipID     string    `db:"tip_id" json:"tip_id"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
