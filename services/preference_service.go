package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/models"
	"ai_tips_engine/repository"
	"ai_tips_engine/utils"
)

// PreferenceService 用户偏好画像的维护
// 交互写入后同步重算画像，问卷向量按权重衰减混入
type PreferenceService struct {
	embedding    *EmbeddingService
	dislikeAlpha float64
	startWeight  float64
	floorWeight  float64
	decayStep    float64
}

// NewPreferenceService 创建偏好服务
func NewPreferenceService(cfg *config.Config, embedding *EmbeddingService) *PreferenceService {
	return &PreferenceService{
		embedding:    embedding,
		dislikeAlpha: cfg.Scoring.DislikeAlpha,
		startWeight:  cfg.Survey.StartWeight,
		floorWeight:  cfg.Survey.FloorWeight,
		decayStep:    cfg.Survey.DecayStep,
	}
}

// RecordInteraction 记录交互并同步重算画像
// 画像重算失败不回滚交互，留给调度器的兜底刷新补齐
func (s *PreferenceService) RecordInteraction(ctx context.Context, userID, tipID, interactionType string) error {
	if err := repository.RecordInteraction(userID, tipID, interactionType); err != nil {
		return err
	}

	if err := s.RecomputeProfile(ctx, userID); err != nil {
		logger.Warn("画像重算失败，等待定时刷新兜底", "user_id", userID, "error", err.Error())
	}
	return nil
}

// RecomputeProfile 从交互历史和问卷向量重算用户画像
//
// 交互向量 = mean(喜欢的贴士向量) - α*mean(不喜欢的贴士向量)
// 收藏不参与向量计算，只计入交互总数影响问卷权重衰减
// 问卷权重 = max(下限, 初始权重 - 衰减步长*交互次数)
// 画像 = 问卷权重*问卷向量 + (1-问卷权重)*交互向量，归一化为单位向量
func (s *PreferenceService) RecomputeProfile(ctx context.Context, userID string) error {
	likeVecs, err := repository.GetInteractionEmbeddings(userID, models.InteractionLike)
	if err != nil {
		return err
	}
	dislikeVecs, err := repository.GetInteractionEmbeddings(userID, models.InteractionDislike)
	if err != nil {
		return err
	}
	interactionCount, err := repository.CountInteractions(userID)
	if err != nil {
		return err
	}

	surveyVec, err := s.surveyVector(userID)
	if err != nil {
		return err
	}

	// 既无可计算的交互也无问卷时没有画像可算，只把计数清零
	if len(likeVecs) == 0 && len(dislikeVecs) == 0 && surveyVec == nil {
		if err := repository.ResetInteractionCount(userID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return nil
	}

	profileVec := s.profileVector(likeVecs, dislikeVecs, surveyVec, interactionCount)
	if profileVec == nil {
		// 正负向量刚好抵消成零向量时保留旧画像不动
		logger.Warn("画像向量为零，跳过更新", "user_id", userID)
		return nil
	}

	return repository.UpsertProfile(&models.PreferenceProfile{
		UserID:           userID,
		Embedding:        profileVec,
		InteractionCount: interactionCount,
	})
}

// profileVector 画像向量的纯计算部分
// 正向质心只取喜欢的贴士向量，交互次数只影响问卷权重；
// 混合结果为零向量时返回nil
func (s *PreferenceService) profileVector(likeVecs, dislikeVecs [][]float32, surveyVec []float32, interactionCount int) []float32 {
	var interactionVec []float32
	switch {
	case len(likeVecs) > 0 && len(dislikeVecs) > 0:
		interactionVec = utils.ScaleAndSubtract(utils.MeanVector(likeVecs), utils.MeanVector(dislikeVecs), s.dislikeAlpha)
	case len(likeVecs) > 0:
		interactionVec = utils.MeanVector(likeVecs)
	case len(dislikeVecs) > 0:
		// 只有负向交互时取反向质心，把画像推离不喜欢的方向
		dislikeMean := utils.MeanVector(dislikeVecs)
		interactionVec = utils.ScaleAndSubtract(make([]float32, len(dislikeMean)), dislikeMean, s.dislikeAlpha)
	}

	var profileVec []float32
	switch {
	case interactionVec == nil:
		profileVec = surveyVec
	case surveyVec == nil:
		profileVec = interactionVec
	default:
		profileVec = utils.BlendVectors(surveyVec, interactionVec, s.surveyBlendWeight(interactionCount))
	}

	if utils.CosineSimilarity(profileVec, profileVec) == 0 {
		return nil
	}
	return utils.NormalizeVector(profileVec)
}

// surveyBlendWeight 问卷向量的混合权重，随交互次数线性衰减到下限
func (s *PreferenceService) surveyBlendWeight(interactionCount int) float64 {
	weight := s.startWeight - s.decayStep*float64(interactionCount)
	if weight < s.floorWeight {
		weight = s.floorWeight
	}
	return weight
}

// surveyVector 取用户各小节问卷向量的均值，没有问卷时返回nil
func (s *PreferenceService) surveyVector(userID string) ([]float32, error) {
	embeddings, err := repository.GetSurveyEmbeddings(userID)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, 0, len(embeddings))
	for _, e := range embeddings {
		vecs = append(vecs, e.Embedding)
	}
	return utils.MeanVector(vecs), nil
}

// GetProfileEmbedding 取用户画像向量
// 无画像或交互计数为零（个性化失效）时返回nil，打分退回中性
func (s *PreferenceService) GetProfileEmbedding(userID string) []float32 {
	profile, err := repository.GetProfile(userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warn("读取用户画像失败", "user_id", userID, "error", err.Error())
		}
		return nil
	}

	hasSurvey := false
	if embeddings, err := repository.GetSurveyEmbeddings(userID); err == nil && len(embeddings) > 0 {
		hasSurvey = true
	}
	if profile.InteractionCount == 0 && !hasSurvey {
		return nil
	}
	return profile.Embedding
}

// DislikeCentroid 取用户不喜欢贴士的质心向量，用于打分时的负向惩罚
func (s *PreferenceService) DislikeCentroid(userID string) []float32 {
	vecs, err := repository.GetInteractionEmbeddings(userID, models.InteractionDislike)
	if err != nil {
		logger.Warn("读取负向交互向量失败", "user_id", userID, "error", err.Error())
		return nil
	}
	if len(vecs) == 0 {
		return nil
	}
	return utils.MeanVector(vecs)
}

// 问卷选项到描述文本的映射，嵌入这些文本得到问卷向量
// 未登记的选项用"小节 选项"拼出兜底文本
var surveyOptionTexts = map[string]string{
	"language_development/vocabulary":   "building vocabulary and learning new words through everyday conversation",
	"language_development/storytelling": "telling stories together and narrating daily activities",
	"language_development/songs":        "songs nursery rhymes and playful language games",
	"early_science/counting":            "counting numbers and early math through play",
	"early_science/nature":              "exploring nature outdoors and asking why questions",
	"early_science/experiments":         "simple hands-on experiments and discovering how things work",
	"early_literacy/reading":            "reading picture books together every day",
	"early_literacy/letters":            "recognizing letters and the alphabet",
	"early_literacy/writing":            "drawing scribbling and first steps toward writing",
	"social_emotional/sharing":          "learning to share and take turns with other children",
	"social_emotional/feelings":         "naming feelings and managing big emotions",
	"social_emotional/friends":          "making friends and playing well with others",
	"content_style/short":               "short practical tips that take a few minutes",
	"content_style/playful":             "playful game-like activities",
	"content_style/routine":             "tips that fit into daily routines like meals and bath time",
}

func surveyOptionText(section, option string) string {
	if text, ok := surveyOptionTexts[section+"/"+option]; ok {
		return text
	}
	return strings.ReplaceAll(section, "_", " ") + " " + strings.ReplaceAll(option, "_", " ")
}

// SubmitSurvey 保存问卷选项并重算各小节向量与画像
// 同一小节重复提交整体覆盖，向量按小节内选项文本的嵌入均值聚合
func (s *PreferenceService) SubmitSurvey(ctx context.Context, userID string, responses []models.SurveyResponse) error {
	if len(responses) == 0 {
		return fmt.Errorf("问卷选项为空")
	}
	for i := range responses {
		responses[i].UserID = userID
	}

	if err := repository.SaveSurveyResponses(userID, responses); err != nil {
		return err
	}

	// 按小节聚合选项文本
	sectionTexts := make(map[string][]string)
	sectionOrder := make([]string, 0)
	for _, r := range responses {
		if _, ok := sectionTexts[r.Section]; !ok {
			sectionOrder = append(sectionOrder, r.Section)
		}
		sectionTexts[r.Section] = append(sectionTexts[r.Section], surveyOptionText(r.Section, r.Option))
	}

	for _, section := range sectionOrder {
		vectors, err := s.embedding.EmbedTexts(ctx, sectionTexts[section])
		if err != nil {
			return fmt.Errorf("问卷向量计算失败: %w", err)
		}
		sectionVec := utils.NormalizeVector(utils.MeanVector(vectors))
		if sectionVec == nil {
			continue
		}
		if err := repository.UpsertSurveyEmbedding(userID, section, sectionVec); err != nil {
			return err
		}
	}

	return s.RecomputeProfile(ctx, userID)
}
