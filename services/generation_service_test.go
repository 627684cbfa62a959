package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/models"
)

// fakeGenerator 按预设脚本响应Complete调用
type fakeGenerator struct {
	completions []func() (string, error)
	calls       int
	streamFn    func(onChunk func(string) error) error
}

func (f *fakeGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.completions) {
		return "", errors.New("脚本之外的调用")
	}
	return f.completions[idx]()
}

func (f *fakeGenerator) StreamComplete(ctx context.Context, system, user string, onChunk func(string) error) error {
	return f.streamFn(onChunk)
}

func newTestGenerationService(gen TextGenerator) *GenerationService {
	cfg := &config.Config{}
	cfg.OpenAI.MaxRetries = 3
	s := NewGenerationService(cfg, gen)
	// 测试中不真正等待，只记录退避序列
	s.wait = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

const validTipArray = `[
  {"title": "Name the feeling", "body": "Calmly label the emotion you see.", "details": "You look sad.", "category": "social_emotional_learning"},
  {"title": "Count the stairs", "body": "Count out loud while climbing together.", "category": "early_science_skills"}
]`

func TestGenerateTipsParsesArray(t *testing.T) {
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) { return validTipArray, nil },
	}}
	s := newTestGenerationService(gen)

	tips, fallback, err := s.GenerateTips(context.Background(), "feelings", GenerationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if fallback {
		t.Error("正常解析不应走兜底")
	}
	if len(tips) != 2 {
		t.Fatalf("期望2条贴士，实际%d条", len(tips))
	}
	if tips[0].Source != models.TipSourceAI || tips[0].ID == "" || tips[0].Fingerprint == "" {
		t.Errorf("生成贴士缺少来源/ID/指纹: %+v", tips[0])
	}
	if tips[0].Category != models.CategorySocialEmotional {
		t.Errorf("分类 = %s, 期望 %s", tips[0].Category, models.CategorySocialEmotional)
	}
}

func TestGenerateTipsSalvagesWrappedArray(t *testing.T) {
	wrapped := "Here are your tips:\n```json\n" + validTipArray + "\n```\nHope this helps!"
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) { return wrapped, nil },
	}}
	s := newTestGenerationService(gen)

	tips, _, err := s.GenerateTips(context.Background(), "feelings", GenerationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tips) != 2 {
		t.Fatalf("带围栏的输出应被抢救解析，实际%d条", len(tips))
	}
}

func TestGenerateTipsThirdAttemptWins(t *testing.T) {
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) { return "", errors.New("transient") },
		func() (string, error) { return "not json at all", nil },
		func() (string, error) { return validTipArray, nil },
	}}
	s := newTestGenerationService(gen)

	var backoffs []time.Duration
	s.wait = func(ctx context.Context, d time.Duration) error {
		backoffs = append(backoffs, d)
		return nil
	}

	tips, fallback, err := s.GenerateTips(context.Background(), "feelings", GenerationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if fallback || len(tips) != 2 {
		t.Fatalf("第三次尝试成功时应返回正常结果: fallback=%v len=%d", fallback, len(tips))
	}
	if gen.calls != 3 {
		t.Errorf("期望恰好3次尝试，实际%d次", gen.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(backoffs) != 2 || backoffs[0] != want[0] || backoffs[1] != want[1] {
		t.Errorf("退避序列 = %v, 期望 %v", backoffs, want)
	}
}

func TestGenerateTipsNoRetryOnRateLimit(t *testing.T) {
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) {
			return "", &ProviderError{StatusCode: http.StatusTooManyRequests, Body: "rate limit exceeded"}
		},
	}}
	s := newTestGenerationService(gen)

	tips, fallback, err := s.GenerateTips(context.Background(), "bedtime", GenerationOptions{Count: 3})
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 1 {
		t.Errorf("限流错误不应重试，实际调用%d次", gen.calls)
	}
	if !fallback || len(tips) != 3 {
		t.Errorf("限流时应立即返回兜底贴士: fallback=%v len=%d", fallback, len(tips))
	}
}

func TestGenerateTipsFallbackAfterExhaustion(t *testing.T) {
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) { return "garbage", nil },
		func() (string, error) { return "garbage", nil },
		func() (string, error) { return "garbage", nil },
	}}
	s := newTestGenerationService(gen)

	tips, fallback, err := s.GenerateTips(context.Background(), "picky eater", GenerationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !fallback {
		t.Error("重试耗尽应走兜底")
	}
	if len(tips) == 0 {
		t.Fatal("兜底贴士不应为空")
	}
	// 兜底内容带上原始问题保持关联感
	if !strings.Contains(tips[0].Details, "picky eater") {
		t.Errorf("兜底贴士应引用用户问题: %q", tips[0].Details)
	}
}

func TestStreamTipsEmitsPerLine(t *testing.T) {
	// 行被拆在多个chunk里，坏行夹在中间，最后一行没有换行结尾
	gen := &fakeGenerator{streamFn: func(onChunk func(string) error) error {
		chunks := []string{
			`{"title":"Tip one","bo`,
			`dy":"First body.","category":"early_science_skills"}` + "\n",
			"this line is not json\n",
			`{"broken json` + "\n",
			`{"title":"Tip two","body":"Second body."}`,
		}
		for _, c := range chunks {
			if err := onChunk(c); err != nil {
				return err
			}
		}
		return nil
	}}
	s := newTestGenerationService(gen)

	var got []*models.Tip
	emitted, err := s.StreamTips(context.Background(), "science", GenerationOptions{}, func(tip *models.Tip) error {
		got = append(got, tip)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if emitted != 2 || len(got) != 2 {
		t.Fatalf("期望下发2条，实际%d条", emitted)
	}
	if got[0].Title != "Tip one" || got[1].Title != "Tip two" {
		t.Errorf("下发顺序错误: %q, %q", got[0].Title, got[1].Title)
	}
	if got[1].Category != models.CategoryGenerated {
		t.Errorf("未知分类应归入%s，实际%s", models.CategoryGenerated, got[1].Category)
	}
}

func TestStreamTipsCallbackErrorStopsStream(t *testing.T) {
	delivered := 0
	gen := &fakeGenerator{streamFn: func(onChunk func(string) error) error {
		lines := []string{
			`{"title":"Tip one","body":"First body."}` + "\n",
			`{"title":"Tip two","body":"Second body."}` + "\n",
			`{"title":"Tip three","body":"Third body."}` + "\n",
		}
		for _, l := range lines {
			if err := onChunk(l); err != nil {
				return err
			}
			delivered++
		}
		return nil
	}}
	s := newTestGenerationService(gen)

	wantErr := errors.New("client gone")
	emitted, err := s.StreamTips(context.Background(), "x", GenerationOptions{}, func(tip *models.Tip) error {
		if tip.Title == "Tip two" {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("回调错误应向上传播，实际 %v", err)
	}
	if emitted != 1 {
		t.Errorf("中断前应只下发1条，实际%d条", emitted)
	}
	if delivered >= 3 {
		t.Error("回调出错后上游不应继续推送")
	}
}

func TestGeneratedTipsAreSanitized(t *testing.T) {
	dirty := `[{"title": "Counting fun", "body": "Great tip, visit https://spam.example.com or dial +1 555 123 4567 now.", "category": "generated"}]`
	gen := &fakeGenerator{completions: []func() (string, error){
		func() (string, error) { return dirty, nil },
	}}
	s := newTestGenerationService(gen)

	tips, _, err := s.GenerateTips(context.Background(), "x", GenerationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	body := tips[0].Body
	if strings.Contains(body, "http") || strings.Contains(body, "555") {
		t.Errorf("生成内容未净化: %q", body)
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ProviderError{StatusCode: 429, Body: "slow down"}, true},
		{&ProviderError{StatusCode: 400, Body: "insufficient quota"}, true},
		{&ProviderError{StatusCode: 500, Body: "oops"}, false},
		{errors.New("plain error"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsRateLimitError(tt.err); got != tt.want {
			t.Errorf("IsRateLimitError(%v) = %v, 期望 %v", tt.err, got, tt.want)
		}
	}
}
