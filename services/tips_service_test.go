package services

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/db"
	"ai_tips_engine/models"
)

func newScopeTestService(policyName string) *TipsService {
	cfg := &config.Config{}
	cfg.Guardrail.Policy = policyName
	cfg.Scoring.DefaultLimit = 5
	return NewTipsService(cfg, nil, nil, nil, nil)
}

func TestCheckScopeSoftReframe(t *testing.T) {
	s := newScopeTestService("broad_parenting")

	// 话题词没命中但有孩子线索：不拒绝，改为带引导指令生成
	verdict, steering := s.checkScope("my toddler and our new puppy")
	if !verdict.OK {
		t.Fatalf("有孩子线索的查询应走软改写而不是拒绝: %+v", verdict)
	}
	if steering == "" {
		t.Error("软改写应附加引导指令")
	}

	// 完全无关的查询照常拒绝
	verdict, steering = s.checkScope("how do I fix my car engine")
	if verdict.OK || steering != "" {
		t.Errorf("无孩子线索的查询应直接拒绝: %+v", verdict)
	}

	// 正常范围内的查询不带引导指令
	verdict, steering = s.checkScope("bedtime routine for my 2 year old")
	if !verdict.OK || steering != "" {
		t.Errorf("范围内查询不应附加引导指令: %+v steering=%q", verdict, steering)
	}
}

func TestCheckScopeStrictNoReframe(t *testing.T) {
	s := newScopeTestService("strict_learning_domains")

	// 严格口径不做软改写
	verdict, steering := s.checkScope("my toddler and our new puppy")
	if verdict.OK || steering != "" {
		t.Errorf("严格口径应直接拒绝: %+v steering=%q", verdict, steering)
	}
}

func TestValidateQueryRequest(t *testing.T) {
	s := newScopeTestService("broad_parenting")

	tests := []struct {
		name    string
		req     models.TipsQueryRequest
		wantErr bool
	}{
		{"缺user_id", models.TipsQueryRequest{Prompt: "x"}, true},
		{"缺prompt", models.TipsQueryRequest{UserID: "u1"}, true},
		{"未知模式", models.TipsQueryRequest{UserID: "u1", Prompt: "x", GenerateMode: "magic"}, true},
		{"合法请求", models.TipsQueryRequest{UserID: "u1", Prompt: "x", GenerateMode: "hybrid"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.validateQueryRequest(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateQueryRequest = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	// 默认值回填
	req := models.TipsQueryRequest{UserID: "u1", Prompt: "x"}
	if err := s.validateQueryRequest(&req); err != nil {
		t.Fatal(err)
	}
	if req.Limit != 5 || req.GenerateMode != models.GenerateModeHybrid {
		t.Errorf("默认值未回填: limit=%d mode=%s", req.Limit, req.GenerateMode)
	}
}

// setUnreachableDB 把连接池指到不可达地址
// 画像和负向质心的读取失败会降级为nil，不影响编排流程本身
func setUnreachableDB(t *testing.T) {
	t.Helper()
	handle, err := sql.Open("mysql", "tips:tips@tcp(127.0.0.1:9)/tips?timeout=50ms&readTimeout=50ms&writeTimeout=50ms")
	if err != nil {
		t.Fatal(err)
	}
	db.DB = handle
}

// topicFakeProvider 按文本内容给向量：提到bedtime的算在题内，其余正交
type topicFakeProvider struct{}

func (p *topicFakeProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		if strings.Contains(strings.ToLower(text), "bedtime") {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{0, 1, 0}
		}
	}
	return out, nil
}

func newFakeTipsService(gen TextGenerator) *TipsService {
	cfg := &config.Config{}
	cfg.Guardrail.Policy = "broad_parenting"
	cfg.Scoring.MinQuerySim = 0.40
	cfg.Scoring.StrongQuerySim = 0.55
	cfg.Scoring.LambdaQuery = 0.65
	cfg.Scoring.LambdaPersonal = 0.35
	cfg.Scoring.LambdaDislike = 0.25
	cfg.Scoring.DislikeAlpha = 0.6
	cfg.Scoring.DefaultLimit = 5
	cfg.OpenAI.MaxInputChars = 4000
	cfg.OpenAI.MaxRetries = 3
	cfg.Survey.StartWeight = 0.7
	cfg.Survey.FloorWeight = 0.3
	cfg.Survey.DecayStep = 0.02

	embedding := NewEmbeddingService(cfg, &topicFakeProvider{}, NewEmbedCache(time.Minute, 16, nil))
	generation := NewGenerationService(cfg, gen)
	generation.wait = func(ctx context.Context, d time.Duration) error { return nil }
	preference := NewPreferenceService(cfg, embedding)
	return NewTipsService(cfg, embedding, NewScoringService(cfg), generation, preference)
}

func TestGeneratedTipsBelowFloorNotSurfaced(t *testing.T) {
	setUnreachableDB(t)
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) {
			return `[{"title":"Totally unrelated","body":"Nothing about the question at all.","category":"generated"}]`, nil
		},
	}}
	s := newFakeTipsService(gen)

	result, err := s.GetContextualTips(context.Background(), &models.TipsQueryRequest{
		UserID:       "u1",
		Prompt:       "bedtime routine for my 2 year old",
		GenerateMode: models.GenerateModeGenerate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tips) != 0 {
		t.Fatalf("低于相关性下限的生成贴士不应下发: %+v", result.Tips)
	}
	if result.Source != SourceNone {
		t.Errorf("生成内容全被过滤时应返回零结果: source=%s", result.Source)
	}
}

func TestGeneratedTipsAboveFloorSurfaced(t *testing.T) {
	setUnreachableDB(t)
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) {
			return `[{"title":"Calm bedtime wind down","body":"Keep the same bedtime steps every night.","category":"generated"}]`, nil
		},
	}}
	s := newFakeTipsService(gen)

	result, err := s.GetContextualTips(context.Background(), &models.TipsQueryRequest{
		UserID:       "u1",
		Prompt:       "bedtime routine for my 2 year old",
		GenerateMode: models.GenerateModeGenerate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != SourceGenerated || !result.IsGenerated {
		t.Fatalf("过了下限的生成贴士应正常下发: source=%s", result.Source)
	}
	if len(result.Tips) != 1 || result.Tips[0].QuerySim < 0.40 {
		t.Errorf("结果应带过下限的相似度分: %+v", result.Tips)
	}
}

func TestFallbackTipsExemptFromFloor(t *testing.T) {
	setUnreachableDB(t)
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) {
			return "", &ProviderError{StatusCode: http.StatusTooManyRequests, Body: "rate limit exceeded"}
		},
	}}
	s := newFakeTipsService(gen)

	// 模型不可用时写死的兜底贴士是唯一不受下限约束的出口
	result, err := s.GetContextualTips(context.Background(), &models.TipsQueryRequest{
		UserID:       "u1",
		Prompt:       "bedtime routine for my 2 year old",
		GenerateMode: models.GenerateModeGenerate,
		Limit:        3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Source != SourceFallback {
		t.Fatalf("限流时应走兜底: source=%s", result.Source)
	}
	if len(result.Tips) == 0 {
		t.Error("兜底贴士不应被相关性下限过滤掉")
	}
}

func TestStreamSkipsBelowFloorTips(t *testing.T) {
	setUnreachableDB(t)
	gen := &fakeGenerator{streamFn: func(onChunk func(string) error) error {
		lines := []string{
			`{"title":"Calm bedtime wind down","body":"Keep the same bedtime steps every night."}` + "\n",
			`{"title":"Totally unrelated","body":"Nothing about the question at all."}` + "\n",
		}
		for _, l := range lines {
			if err := onChunk(l); err != nil {
				return err
			}
		}
		return nil
	}}
	s := newFakeTipsService(gen)

	var msgs []models.StreamMessage
	err := s.StreamContextualTips(context.Background(), &models.TipsQueryRequest{
		UserID: "u1",
		Prompt: "bedtime routine for my 2 year old",
	}, func(m models.StreamMessage) error {
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var tipFrames []models.StreamMessage
	for _, m := range msgs {
		if m.Type == models.StreamTypeTip {
			tipFrames = append(tipFrames, m)
		}
		if m.Type == models.StreamTypeBatch {
			t.Error("模型有产出时不应追加批量兜底")
		}
	}
	if len(tipFrames) != 1 {
		t.Fatalf("低于下限的贴士应被跳过，期望下发1条，实际%d条", len(tipFrames))
	}
	if tipFrames[0].Tip.Tip.Title != "Calm bedtime wind down" {
		t.Errorf("下发的贴士不对: %q", tipFrames[0].Tip.Tip.Title)
	}
	if last := msgs[len(msgs)-1]; last.Type != models.StreamTypeDone {
		t.Errorf("流应以done帧结束，实际 %s", last.Type)
	}
}

func TestNoProfileFallsBackToPopularity(t *testing.T) {
	setUnreachableDB(t)
	origCandidate, origPopular := listCandidateTips, listPopularTips
	defer func() {
		listCandidateTips, listPopularTips = origCandidate, origPopular
	}()

	popularCalled := false
	listPopularTips = func(limit int) ([]models.Tip, error) {
		popularCalled = true
		return []models.Tip{{
			ID:        "tip-1",
			Title:     "Calm bedtime routine",
			Body:      "A steady bedtime plan helps toddlers settle.",
			Embedding: []float32{1, 0, 0},
		}}, nil
	}
	listCandidateTips = func(userID string, limit int) ([]models.Tip, error) {
		t.Error("无画像用户不应走个性化候选检索")
		return nil, nil
	}

	s := newFakeTipsService(&fakeGenerator{})
	result, err := s.GetContextualTips(context.Background(), &models.TipsQueryRequest{
		UserID:       "u1",
		Prompt:       "bedtime routine for my 2 year old",
		GenerateMode: models.GenerateModeDatabase,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !popularCalled {
		t.Fatal("无画像时应从热门排序取候选")
	}
	if result.Source != SourceDatabase || len(result.Tips) != 1 || result.Tips[0].Tip.ID != "tip-1" {
		t.Errorf("热门候选应正常参与打分下发: source=%s tips=%+v", result.Source, result.Tips)
	}
	if result.IsPersonalized {
		t.Error("无画像结果不应标记为个性化")
	}
}
