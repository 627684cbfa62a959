package repository

import (
	"ai_tips_engine/db"
	"ai_tips_engine/models"
)

// GetProfile 查询用户偏好画像
func GetProfile(userID string) (*models.PreferenceProfile, error) {
	row := db.DB.QueryRow(`
		SELECT user_id, embedding, interaction_count, updated_at
		FROM user_preference_profiles
		WHERE user_id = ?
	`, userID)

	p := &models.PreferenceProfile{}
	if err := row.Scan(&p.UserID, &p.EmbeddingRaw, &p.InteractionCount, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Embedding = DecodeEmbedding(p.EmbeddingRaw)
	return p, nil
}

// UpsertProfile 写入或更新用户偏好画像
func UpsertProfile(p *models.PreferenceProfile) error {
	_, err := db.DB.Exec(`
        INSERT INTO user_preference_profiles (user_id, embedding, interaction_count, updated_at, created_at)
        VALUES (?, CAST(? AS JSON), ?, NOW(), NOW())
        ON DUPLICATE KEY UPDATE embedding=VALUES(embedding), interaction_count=VALUES(interaction_count), updated_at=NOW()
    `, p.UserID, EncodeEmbedding(p.Embedding), p.InteractionCount)
	return err
}

// ResetInteractionCount 清零交互计数但保留旧向量
// 用户交互清空后个性化失效，旧向量留着不再参与打分
func ResetInteractionCount(userID string) error {
	_, err := db.DB.Exec(`
		UPDATE user_preference_profiles SET interaction_count = 0, updated_at = NOW()
		WHERE user_id = ?
	`, userID)
	return err
}

// SaveSurveyResponses 保存用户问卷选项，重复提交覆盖同小节旧选项
func SaveSurveyResponses(userID string, responses []models.SurveyResponse) error {
	tx, err := db.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 按小节整体替换
	sections := make(map[string]bool)
	for _, r := range responses {
		if !sections[r.Section] {
			if _, err := tx.Exec(`
				DELETE FROM survey_responses WHERE user_id = ? AND section = ?
			`, userID, r.Section); err != nil {
				return err
			}
			sections[r.Section] = true
		}
	}

	for _, r := range responses {
		if _, err := tx.Exec(`
			INSERT INTO survey_responses (user_id, section, option_key, created_at)
			VALUES (?, ?, ?, NOW())
		`, userID, r.Section, r.Option); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSurveyResponses 查询用户的全部问卷选项
func GetSurveyResponses(userID string) ([]models.SurveyResponse, error) {
	rows, err := db.DB.Query(`
		SELECT user_id, section, option_key, created_at
		FROM survey_responses
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make([]models.SurveyResponse, 0)
	for rows.Next() {
		var r models.SurveyResponse
		if err := rows.Scan(&r.UserID, &r.Section, &r.Option, &r.CreatedAt); err != nil {
			continue
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// UpsertSurveyEmbedding 写入或更新按小节聚合的问卷向量
func UpsertSurveyEmbedding(userID, section string, embedding []float32) error {
	_, err := db.DB.Exec(`
        INSERT INTO survey_preference_embeddings (user_id, section, embedding, updated_at, created_at)
        VALUES (?, ?, CAST(? AS JSON), NOW(), NOW())
        ON DUPLICATE KEY UPDATE embedding=VALUES(embedding), updated_at=NOW()
    `, userID, section, EncodeEmbedding(embedding))
	return err
}

// GetSurveyEmbeddings 查询用户全部小节的问卷向量
func GetSurveyEmbeddings(userID string) ([]models.SurveyEmbedding, error) {
	rows, err := db.DB.Query(`
		SELECT user_id, section, embedding, updated_at
		FROM survey_preference_embeddings
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	embeddings := make([]models.SurveyEmbedding, 0)
	for rows.Next() {
		var e models.SurveyEmbedding
		if err := rows.Scan(&e.UserID, &e.Section, &e.EmbeddingRaw, &e.UpdatedAt); err != nil {
			continue
		}
		e.Embedding = DecodeEmbedding(e.EmbeddingRaw)
		if e.Embedding != nil {
			embeddings = append(embeddings, e)
		}
	}
	return embeddings, rows.Err()
}
