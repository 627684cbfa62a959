package repository

import (
	"fmt"

	"ai_tips_engine/db"
	"ai_tips_engine/models"
)

// NotFoundError 交互引用的对象不存在
// 必须中止本次交互，静默忽略会污染后续画像计算
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s不存在: %s", e.Kind, e.ID)
}

// RecordInteraction 记录一次用户交互
// 按models.InteractionRemovals的状态转移表先删互斥类型再写入，
// 整个过程在一个事务内完成，同一用户的并发交互靠行锁串行化
func RecordInteraction(userID, tipID, interactionType string) error {
	if !models.IsValidInteractionType(interactionType) {
		return fmt.Errorf("未知的交互类型: %s", interactionType)
	}

	exists, err := TipExists(tipID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Kind: "小贴士", ID: tipID}
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 删除被新交互取代的旧交互（like删dislike，dislike删like，unsave删save）
	for _, removeType := range models.InteractionRemovals[interactionType] {
		if _, err := tx.Exec(`
			DELETE FROM user_tip_interactions
			WHERE user_id = ? AND tip_id = ? AND type = ?
		`, userID, tipID, removeType); err != nil {
			return err
		}
	}

	// unsave本身不落行，它只撤销save
	if interactionType != models.InteractionUnsave {
		// (user_id, tip_id, type)有唯一索引，重复记录同类型交互是幂等的
		if _, err := tx.Exec(`
			INSERT IGNORE INTO user_tip_interactions (user_id, tip_id, type, created_at)
			VALUES (?, ?, ?, NOW())
		`, userID, tipID, interactionType); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListUserInteractions 查询用户的全部交互记录
func ListUserInteractions(userID string) ([]models.Interaction, error) {
	rows, err := db.DB.Query(`
		SELECT user_id, tip_id, type, created_at
		FROM user_tip_interactions
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	interactions := make([]models.Interaction, 0)
	for rows.Next() {
		var it models.Interaction
		if err := rows.Scan(&it.UserID, &it.TipID, &it.Type, &it.CreatedAt); err != nil {
			continue
		}
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

// GetInteractionEmbeddings 取用户某类交互对应的小贴士嵌入向量
func GetInteractionEmbeddings(userID, interactionType string) ([][]float32, error) {
	rows, err := db.DB.Query(`
		SELECT e.embedding
		FROM user_tip_interactions i
		JOIN tip_embeddings e ON e.tip_id = i.tip_id
		WHERE i.user_id = ? AND i.type = ?
	`, userID, interactionType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vectors := make([][]float32, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		if vec := DecodeEmbedding(raw); vec != nil {
			vectors = append(vectors, vec)
		}
	}
	return vectors, rows.Err()
}

// CountInteractions 统计用户的交互总数
func CountInteractions(userID string) (int, error) {
	var count int
	err := db.DB.QueryRow(`
		SELECT COUNT(1) FROM user_tip_interactions WHERE user_id = ?
	`, userID).Scan(&count)
	return count, err
}

// ListUsersWithStaleProfiles 找出交互时间晚于画像更新时间的用户
// 正常路径下画像是同步重算的，这里兜底处理中途失败留下的缺口
func ListUsersWithStaleProfiles() ([]string, error) {
	rows, err := db.DB.Query(`
		SELECT i.user_id
		FROM user_tip_interactions i
		LEFT JOIN user_preference_profiles p ON p.user_id = i.user_id
		GROUP BY i.user_id, p.updated_at
		HAVING p.updated_at IS NULL OR MAX(i.created_at) > p.updated_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			continue
		}
		users = append(users, uid)
	}
	return users, rows.Err()
}
