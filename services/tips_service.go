package services

import (
	"context"
	"fmt"
	"strings"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/models"
	"ai_tips_engine/repository"
	"ai_tips_engine/utils"
)

// 候选池大小，打分前从库里最多取这么多条
const candidatePoolSize = 200

// 小贴士来源标识
const (
	SourceDatabase  = "database"
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
	SourceRejected  = "rejected"
	SourceNone      = "none"
)

// 候选来源，测试中可替换
var (
	listCandidateTips = repository.ListCandidateTips
	listPopularTips   = repository.ListPopularTips
)

// TipsService 小贴士查询的编排层
// 串起话题闸门、嵌入、检索打分和生成兜底
type TipsService struct {
	embedding    *EmbeddingService
	scoring      *ScoringService
	generation   *GenerationService
	preference   *PreferenceService
	policy       *GuardrailPolicy
	defaultLimit int
}

// NewTipsService 创建编排服务，策略按配置选择，未知策略名回退宽口径
func NewTipsService(cfg *config.Config, embedding *EmbeddingService, scoring *ScoringService,
	generation *GenerationService, preference *PreferenceService) *TipsService {

	policy := BroadParentingPolicy()
	if cfg.Guardrail.Policy == "strict_learning_domains" {
		policy = StrictLearningDomainsPolicy()
	}

	return &TipsService{
		embedding:    embedding,
		scoring:      scoring,
		generation:   generation,
		preference:   preference,
		policy:       policy,
		defaultLimit: cfg.Scoring.DefaultLimit,
	}
}

// validateQueryRequest 校验查询请求并补默认值
func (s *TipsService) validateQueryRequest(req *models.TipsQueryRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("user_id不能为空")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("prompt不能为空")
	}
	if req.Limit <= 0 {
		req.Limit = s.defaultLimit
	}
	if req.GenerateMode == "" {
		req.GenerateMode = models.GenerateModeHybrid
	}
	switch req.GenerateMode {
	case models.GenerateModeGenerate, models.GenerateModeDatabase, models.GenerateModeHybrid:
	default:
		return fmt.Errorf("未知的generate_mode: %s", req.GenerateMode)
	}
	return nil
}

// checkScope 范围判定，必要时走软改写
// 宽口径把查询拒为non_parenting但文本里有孩子线索时不拒绝，
// 改为在生成提示词里附加引导指令把回答拉回育儿语境
func (s *TipsService) checkScope(prompt string) (verdict Verdict, steering string) {
	verdict = s.policy.Classify(prompt)
	if verdict.OK {
		return verdict, ""
	}
	if s.policy.Name == "broad_parenting" && verdict.Category == CategoryNonParenting && HasChildContext(prompt) {
		logger.Info("查询范围存疑但有孩子线索，走软改写", "category", verdict.Category)
		return Verdict{OK: true}, "The parent's question drifted off topic. Steer every tip back to supporting their child aged 0-5."
	}
	return verdict, ""
}

// GetContextualTips 批量查询小贴士
// 流程：范围判定 → 检索打分 →（hybrid无结果或generate模式）生成兜底
// 范围拒绝和零结果都是正常业务分支，返回成功形状的结果而不是错误
func (s *TipsService) GetContextualTips(ctx context.Context, req *models.TipsQueryRequest) (*models.TipsQueryResult, error) {
	if err := s.validateQueryRequest(req); err != nil {
		return nil, err
	}

	verdict, steering := s.checkScope(req.Prompt)
	if !verdict.OK {
		return &models.TipsQueryResult{
			Tips:    []models.RankedTip{},
			Source:  SourceRejected,
			Message: verdict.Message,
		}, nil
	}

	queryEmb, err := s.embedding.EmbedQuery(ctx, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("查询嵌入失败: %w", err)
	}

	profile := s.preference.GetProfileEmbedding(req.UserID)
	dislikeCentroid := s.preference.DislikeCentroid(req.UserID)
	pins := ExtractKeywordPins(req.Prompt)

	// 库内检索，没有画像的冷启动用户退回热门排序做候选来源
	if req.GenerateMode != models.GenerateModeGenerate {
		var candidates []models.Tip
		if profile != nil {
			candidates, err = listCandidateTips(req.UserID, candidatePoolSize)
		} else {
			candidates, err = listPopularTips(candidatePoolSize)
		}
		if err != nil {
			return nil, fmt.Errorf("检索候选贴士失败: %w", err)
		}

		ptrs := make([]*models.Tip, len(candidates))
		for i := range candidates {
			ptrs[i] = &candidates[i]
		}
		ranked := s.scoring.ScoreAndRank(queryEmb, ptrs, profile, dislikeCentroid, pins, req.Limit)

		if len(ranked) > 0 {
			return &models.TipsQueryResult{
				Tips:           derefRanked(ranked),
				IsPersonalized: profile != nil,
				Source:         SourceDatabase,
			}, nil
		}
		if req.GenerateMode == models.GenerateModeDatabase {
			return &models.TipsQueryResult{
				Tips:    []models.RankedTip{},
				Source:  SourceNone,
				Message: "没有找到相关的小贴士，换个问法试试。",
			}, nil
		}
	}

	// 生成兜底
	opts := GenerationOptions{
		StrictDomains:      len(s.policy.excludedTerms) > 0,
		ContentPreferences: utils.ParsePreferenceList(req.ContentPreferences),
		Steering:           steering,
		Count:              req.Limit,
	}
	tips, usedFallback, err := s.generation.GenerateTips(ctx, req.Prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("生成小贴士失败: %w", err)
	}

	s.embedGeneratedTips(ctx, tips)

	// 模型不可用时的兜底贴士是写死的降级内容，不受下限约束
	if usedFallback {
		ranked := make([]*models.RankedTip, 0, len(tips))
		for _, tip := range tips {
			ranked = append(ranked, s.scoring.ScoreOne(queryEmb, tip, profile, dislikeCentroid))
		}
		if req.Limit > 0 && len(ranked) > req.Limit {
			ranked = ranked[:req.Limit]
		}
		return &models.TipsQueryResult{
			Tips:           derefRanked(ranked),
			IsPersonalized: profile != nil,
			IsGenerated:    true,
			Source:         SourceFallback,
		}, nil
	}

	// 生成结果和检索结果走同一套硬过滤打分，跑题内容一律不下发
	ranked := s.scoring.ScoreAndRank(queryEmb, tips, profile, dislikeCentroid, pins, req.Limit)
	if len(ranked) == 0 {
		return &models.TipsQueryResult{
			Tips:        []models.RankedTip{},
			IsGenerated: true,
			Source:      SourceNone,
			Message:     "没有找到相关的小贴士，换个问法试试。",
		}, nil
	}

	return &models.TipsQueryResult{
		Tips:           derefRanked(ranked),
		IsPersonalized: profile != nil,
		IsGenerated:    true,
		Source:         SourceGenerated,
	}, nil
}

// StreamContextualTips 流式查询小贴士，每生成一条立即打分下发
// onMessage返回错误（通常是连接断开）时整条链路取消
func (s *TipsService) StreamContextualTips(ctx context.Context, req *models.TipsQueryRequest,
	onMessage func(models.StreamMessage) error) error {

	if err := s.validateQueryRequest(req); err != nil {
		return onMessage(models.StreamMessage{Type: models.StreamTypeError, Message: err.Error()})
	}

	verdict, steering := s.checkScope(req.Prompt)
	if !verdict.OK {
		if err := onMessage(models.StreamMessage{Type: models.StreamTypeError, Message: verdict.Message}); err != nil {
			return err
		}
		return onMessage(models.StreamMessage{Type: models.StreamTypeDone})
	}

	if err := onMessage(models.StreamMessage{Type: models.StreamTypePhase, Phase: "embedding"}); err != nil {
		return err
	}

	queryEmb, err := s.embedding.EmbedQuery(ctx, req.Prompt)
	if err != nil {
		return onMessage(models.StreamMessage{Type: models.StreamTypeError, Message: "查询嵌入失败"})
	}

	profile := s.preference.GetProfileEmbedding(req.UserID)
	dislikeCentroid := s.preference.DislikeCentroid(req.UserID)
	pins := ExtractKeywordPins(req.Prompt)

	if err := onMessage(models.StreamMessage{Type: models.StreamTypePhase, Phase: "generating"}); err != nil {
		return err
	}

	opts := GenerationOptions{
		StrictDomains:      len(s.policy.excludedTerms) > 0,
		ContentPreferences: utils.ParsePreferenceList(req.ContentPreferences),
		Steering:           steering,
		Count:              req.Limit,
	}

	emitted, err := s.generation.StreamTips(ctx, req.Prompt, opts, func(tip *models.Tip) error {
		s.embedGeneratedTips(ctx, []*models.Tip{tip})
		// 流式下发也走同一套硬过滤，未过下限或锚点的贴士直接丢弃
		ranked := s.scoring.ScoreOneFiltered(queryEmb, tip, profile, dislikeCentroid, pins)
		if ranked == nil {
			return nil
		}
		return onMessage(models.StreamMessage{Type: models.StreamTypeTip, Tip: ranked})
	})
	if err != nil {
		logger.Warn("流式生成中断", "emitted", emitted, "error", err.Error())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if merr := onMessage(models.StreamMessage{Type: models.StreamTypeError, Message: "生成中断"}); merr != nil {
			return merr
		}
	}

	// 模型一条都没产出时退回写死的批量兜底，兜底内容不受下限约束
	if emitted == 0 && err == nil {
		tips := s.generation.fallbackTips(req.Prompt, req.Limit)
		s.embedGeneratedTips(ctx, tips)
		batch := make([]models.RankedTip, 0, len(tips))
		for _, tip := range tips {
			batch = append(batch, *s.scoring.ScoreOne(queryEmb, tip, profile, dislikeCentroid))
		}
		if merr := onMessage(models.StreamMessage{Type: models.StreamTypeBatch, Tips: batch}); merr != nil {
			return merr
		}
	}

	return onMessage(models.StreamMessage{Type: models.StreamTypeDone})
}

// embedGeneratedTips 为生成的贴士补算嵌入向量
// 嵌入失败只记日志，贴士以零分参与后续流程
func (s *TipsService) embedGeneratedTips(ctx context.Context, tips []*models.Tip) {
	texts := make([]string, 0, len(tips))
	missing := make([]*models.Tip, 0, len(tips))
	for _, tip := range tips {
		if len(tip.Embedding) == 0 {
			texts = append(texts, tip.Title+" "+tip.Body)
			missing = append(missing, tip)
		}
	}
	if len(missing) == 0 {
		return
	}

	vectors, err := s.embedding.EmbedTexts(ctx, texts)
	if err != nil {
		logger.Warn("生成贴士嵌入失败", "count", len(missing), "error", err.Error())
		return
	}
	for i, tip := range missing {
		tip.Embedding = vectors[i]
	}
}

// RecordTipInteraction 记录用户对贴士的交互
// 生成的贴士懒持久化：首次like/save时带上贴士内容，按内容指纹
// 幂等落库，重复内容解析到同一条ID后再记交互
func (s *TipsService) RecordTipInteraction(ctx context.Context, userID, tipID, interactionType string, generated *models.Tip) (string, error) {
	if generated != nil &&
		(interactionType == models.InteractionLike || interactionType == models.InteractionSave) {
		resolvedID, err := s.persistGeneratedTip(ctx, tipID, generated)
		if err != nil {
			return "", err
		}
		tipID = resolvedID
	}

	if err := s.preference.RecordInteraction(ctx, userID, tipID, interactionType); err != nil {
		return "", err
	}
	return tipID, nil
}

// persistGeneratedTip 懒持久化一条生成的贴士，返回落库后的ID
func (s *TipsService) persistGeneratedTip(ctx context.Context, tipID string, generated *models.Tip) (string, error) {
	exists, err := repository.TipExists(tipID)
	if err != nil {
		return "", err
	}
	if exists {
		return tipID, nil
	}

	tip := &models.Tip{
		ID:       tipID,
		Title:    utils.SanitizeTipText(generated.Title),
		Body:     utils.SanitizeTipText(generated.Body),
		Details:  utils.SanitizeTipText(generated.Details),
		Category: generated.Category,
		Source:   models.TipSourceAI,
	}
	if tip.Title == "" || tip.Body == "" {
		return "", fmt.Errorf("贴士内容不完整，无法持久化")
	}
	if tip.Category == "" {
		tip.Category = models.CategoryGenerated
	}
	tip.Fingerprint = utils.TipFingerprint(tip.Title, tip.Body, tip.Details)

	vectors, err := s.embedding.EmbedTexts(ctx, []string{tip.Title + " " + tip.Body})
	if err != nil {
		return "", fmt.Errorf("贴士嵌入计算失败: %w", err)
	}
	tip.Embedding = vectors[0]

	return repository.UpsertGeneratedTip(tip)
}

// GetTip 按ID查询单条贴士
func (s *TipsService) GetTip(tipID string) (*models.Tip, error) {
	return repository.GetTip(tipID)
}

func derefRanked(ranked []*models.RankedTip) []models.RankedTip {
	out := make([]models.RankedTip, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, *r)
	}
	return out
}
