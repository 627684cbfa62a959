package services

import (
	"sort"
	"strings"

	"ai_tips_engine/config"
	"ai_tips_engine/models"
	"ai_tips_engine/utils"
)

// ScoringService 候选贴士的相关性打分与排序
// 打分是纯计算，不访问数据库也不调外部服务
type ScoringService struct {
	minQuerySim    float64
	strongQuerySim float64
	lambdaQuery    float64
	lambdaPersonal float64
	lambdaDislike  float64
}

// NewScoringService 根据配置创建打分服务
func NewScoringService(cfg *config.Config) *ScoringService {
	return &ScoringService{
		minQuerySim:    cfg.Scoring.MinQuerySim,
		strongQuerySim: cfg.Scoring.StrongQuerySim,
		lambdaQuery:    cfg.Scoring.LambdaQuery,
		lambdaPersonal: cfg.Scoring.LambdaPersonal,
		lambdaDislike:  cfg.Scoring.LambdaDislike,
	}
}

// matchesAnyPin 候选文本至少命中一个关键词锚点（不区分大小写的子串匹配）
func matchesAnyPin(tip *models.Tip, pins []string) bool {
	if len(pins) == 0 {
		return true
	}
	text := strings.ToLower(tip.Title + " " + tip.Body)
	for _, pin := range pins {
		if strings.Contains(text, pin) {
			return true
		}
	}
	return false
}

// ScoreAndRank 对候选贴士打分排序并截断到limit条
//
// 过滤规则：
//  1. 查询相似度低于下限的候选直接淘汰，个性化分再高也救不回来
//  2. 提供了关键词锚点时，候选的标题和正文必须至少命中一个锚点
//
// 综合分 = λq*查询相似度 + λp*个性化分 - λd*max(0, 负向相似度)
// 无画像时个性化分取中性值0.5
//
// 排序：强匹配在前，其后按查询相似度降序，再按综合分降序
func (s *ScoringService) ScoreAndRank(
	queryEmb []float32,
	candidates []*models.Tip,
	profile []float32,
	dislikeCentroid []float32,
	pins []string,
	limit int,
) []*models.RankedTip {
	ranked := make([]*models.RankedTip, 0, len(candidates))

	for _, tip := range candidates {
		if len(tip.Embedding) == 0 {
			continue
		}

		querySim := utils.CosineSimilarity(queryEmb, tip.Embedding)
		if querySim < s.minQuerySim {
			continue
		}
		if !matchesAnyPin(tip, pins) {
			continue
		}

		personal := 0.5
		if len(profile) > 0 {
			personal = utils.CosineSimilarity(profile, tip.Embedding)
		}

		combined := s.lambdaQuery*querySim + s.lambdaPersonal*personal
		if len(dislikeCentroid) > 0 {
			if dislikeSim := utils.CosineSimilarity(dislikeCentroid, tip.Embedding); dislikeSim > 0 {
				combined -= s.lambdaDislike * dislikeSim
			}
		}

		ranked = append(ranked, &models.RankedTip{
			Tip:           *tip,
			QuerySim:      querySim,
			Personal:      personal,
			Combined:      combined,
			IsStrongMatch: querySim >= s.strongQuerySim,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].IsStrongMatch != ranked[j].IsStrongMatch {
			return ranked[i].IsStrongMatch
		}
		if ranked[i].QuerySim != ranked[j].QuerySim {
			return ranked[i].QuerySim > ranked[j].QuerySim
		}
		return ranked[i].Combined > ranked[j].Combined
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// ScoreOne 对单条贴士打分，不做过滤
// 只用于模型不可用时的兜底贴士，正常链路一律走带过滤的入口
func (s *ScoringService) ScoreOne(queryEmb []float32, tip *models.Tip, profile, dislikeCentroid []float32) *models.RankedTip {
	querySim := utils.CosineSimilarity(queryEmb, tip.Embedding)

	personal := 0.5
	if len(profile) > 0 && len(tip.Embedding) > 0 {
		personal = utils.CosineSimilarity(profile, tip.Embedding)
	}

	combined := s.lambdaQuery*querySim + s.lambdaPersonal*personal
	if len(dislikeCentroid) > 0 && len(tip.Embedding) > 0 {
		if dislikeSim := utils.CosineSimilarity(dislikeCentroid, tip.Embedding); dislikeSim > 0 {
			combined -= s.lambdaDislike * dislikeSim
		}
	}

	return &models.RankedTip{
		Tip:           *tip,
		QuerySim:      querySim,
		Personal:      personal,
		Combined:      combined,
		IsStrongMatch: querySim >= s.strongQuerySim,
	}
}

// ScoreOneFiltered 对单条贴士打分并应用与ScoreAndRank相同的硬过滤
// 流式下发逐条使用，未过下限或锚点时返回nil，该贴士不下发
func (s *ScoringService) ScoreOneFiltered(queryEmb []float32, tip *models.Tip, profile, dislikeCentroid []float32, pins []string) *models.RankedTip {
	if len(tip.Embedding) == 0 {
		return nil
	}
	r := s.ScoreOne(queryEmb, tip, profile, dislikeCentroid)
	if r.QuerySim < s.minQuerySim {
		return nil
	}
	if !matchesAnyPin(tip, pins) {
		return nil
	}
	return r
}
