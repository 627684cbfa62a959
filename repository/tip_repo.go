package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ai_tips_engine/db"
	"ai_tips_engine/logger"
	"ai_tips_engine/models"
)

// EncodeEmbedding 将向量编码为JSON字符串，存入tip_embeddings的JSON列
func EncodeEmbedding(vec []float32) string {
	b, _ := json.Marshal(vec)
	return string(b)
}

// DecodeEmbedding 解析JSON编码的向量，解析失败返回nil
func DecodeEmbedding(raw string) []float32 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		logger.Warn("解析嵌入向量失败", "error", err)
		return nil
	}
	return vec
}

// GetTip 按ID查询小贴士（含嵌入向量）
func GetTip(tipID string) (*models.Tip, error) {
	row := db.DB.QueryRow(`
		SELECT t.id, t.title, t.body, t.details, t.category, t.source, t.fingerprint, t.created_at,
		       COALESCE(e.embedding, '')
		FROM tips t
		LEFT JOIN tip_embeddings e ON e.tip_id = t.id
		WHERE t.id = ?
	`, tipID)

	t := &models.Tip{}
	var embeddingRaw string
	if err := row.Scan(&t.ID, &t.Title, &t.Body, &t.Details, &t.Category, &t.Source,
		&t.Fingerprint, &t.CreatedAt, &embeddingRaw); err != nil {
		return nil, err
	}
	t.Embedding = DecodeEmbedding(embeddingRaw)
	return t, nil
}

// TipExists 检查小贴士是否存在
func TipExists(tipID string) (bool, error) {
	var count int
	if err := db.DB.QueryRow(`SELECT COUNT(1) FROM tips WHERE id = ?`, tipID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpsertGeneratedTip 按内容指纹幂等写入生成的小贴士
// 指纹已存在时返回已有记录的ID，保证相同文本重复提交解析到同一条Tip
func UpsertGeneratedTip(tip *models.Tip) (string, error) {
	if tip.Fingerprint == "" {
		return "", errors.New("tip fingerprint is empty")
	}

	// 先查指纹，命中直接复用
	var existingID string
	err := db.DB.QueryRow(`SELECT id FROM tips WHERE fingerprint = ?`, tip.Fingerprint).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	// fingerprint列有唯一索引，并发插入相同内容时退回查询
	_, err = tx.Exec(`
		INSERT INTO tips (id, title, body, details, category, source, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW())
	`, tip.ID, tip.Title, tip.Body, tip.Details, tip.Category, tip.Source, tip.Fingerprint)
	if err != nil {
		if qerr := db.DB.QueryRow(`SELECT id FROM tips WHERE fingerprint = ?`, tip.Fingerprint).Scan(&existingID); qerr == nil {
			return existingID, nil
		}
		return "", fmt.Errorf("插入小贴士失败: %w", err)
	}

	// 嵌入在创建时计算一次，之后不变
	_, err = tx.Exec(`
		INSERT INTO tip_embeddings (tip_id, embedding, created_at)
		VALUES (?, CAST(? AS JSON), NOW())
	`, tip.ID, EncodeEmbedding(tip.Embedding))
	if err != nil {
		return "", fmt.Errorf("插入小贴士嵌入失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return tip.ID, nil
}

// ListCandidateTips 取候选小贴士集合（含嵌入），排除用户已点赞/点踩的条目
// 打分器假定输入集合已完成该排除，不再重复检查
func ListCandidateTips(userID string, limit int) ([]models.Tip, error) {
	rows, err := db.DB.Query(`
		SELECT t.id, t.title, t.body, t.details, t.category, t.source, t.fingerprint, t.created_at,
		       e.embedding
		FROM tips t
		JOIN tip_embeddings e ON e.tip_id = t.id
		WHERE t.id NOT IN (
			SELECT tip_id FROM user_tip_interactions
			WHERE user_id = ? AND type IN ('like', 'dislike')
		)
		ORDER BY t.created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTipsWithEmbedding(rows)
}

// ListPopularTips 按点赞数取热门小贴士，用户没有画像时的兜底排序
func ListPopularTips(limit int) ([]models.Tip, error) {
	rows, err := db.DB.Query(`
		SELECT t.id, t.title, t.body, t.details, t.category, t.source, t.fingerprint, t.created_at,
		       e.embedding
		FROM tips t
		JOIN tip_embeddings e ON e.tip_id = t.id
		LEFT JOIN (
			SELECT tip_id, COUNT(1) AS likes
			FROM user_tip_interactions
			WHERE type = 'like'
			GROUP BY tip_id
		) l ON l.tip_id = t.id
		ORDER BY COALESCE(l.likes, 0) DESC, t.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTipsWithEmbedding(rows)
}

func scanTipsWithEmbedding(rows *sql.Rows) ([]models.Tip, error) {
	tips := make([]models.Tip, 0)
	for rows.Next() {
		var t models.Tip
		var embeddingRaw string
		if err := rows.Scan(&t.ID, &t.Title, &t.Body, &t.Details, &t.Category, &t.Source,
			&t.Fingerprint, &t.CreatedAt, &embeddingRaw); err != nil {
			continue
		}
		t.Embedding = DecodeEmbedding(embeddingRaw)
		if t.Embedding == nil {
			continue // 没有可用向量的条目无法参与打分
		}
		tips = append(tips, t)
	}
	return tips, rows.Err()
}
