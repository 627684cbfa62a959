package services

import (
	"context"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/models"
)

// TipsQuerier 小贴士查询编排的对外接口
type TipsQuerier interface {
	GetContextualTips(ctx context.Context, req *models.TipsQueryRequest) (*models.TipsQueryResult, error)
	StreamContextualTips(ctx context.Context, req *models.TipsQueryRequest, onMessage func(models.StreamMessage) error) error
	RecordTipInteraction(ctx context.Context, userID, tipID, interactionType string, generated *models.Tip) (string, error)
	GetTip(tipID string) (*models.Tip, error)
}

// ProfileManager 用户偏好画像的对外接口
type ProfileManager interface {
	RecomputeProfile(ctx context.Context, userID string) error
	SubmitSurvey(ctx context.Context, userID string, responses []models.SurveyResponse) error
	GetProfileEmbedding(userID string) []float32
}

// 包级默认实例，Init后由handlers和scheduler共用
var (
	defaultEmbedding  *EmbeddingService
	defaultPreference *PreferenceService
	defaultTips       *TipsService
)

// Init 按配置装配默认服务实例，进程启动时调用一次
func Init(cfg *config.Config) {
	client := NewOpenAIClient(cfg)
	cache := NewEmbedCache(time.Duration(cfg.EmbedCache.TTLSec)*time.Second, cfg.EmbedCache.MaxEntries, nil)

	defaultEmbedding = NewEmbeddingService(cfg, client, cache)
	defaultPreference = NewPreferenceService(cfg, defaultEmbedding)

	scoring := NewScoringService(cfg)
	generation := NewGenerationService(cfg, client)
	defaultTips = NewTipsService(cfg, defaultEmbedding, scoring, generation, defaultPreference)
}

// Tips 默认的小贴士编排服务
func Tips() *TipsService {
	return defaultTips
}

// Preference 默认的偏好画像服务
func Preference() *PreferenceService {
	return defaultPreference
}

// Embedding 默认的嵌入网关
func Embedding() *EmbeddingService {
	return defaultEmbedding
}
