package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai_tips_engine/config"
)

// fakeProvider 记录调用次数和收到的输入
type fakeProvider struct {
	calls  int
	inputs [][]string
	err    error
}

func (f *fakeProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, inputs)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func newTestEmbeddingConfig() *config.Config {
	cfg := &config.Config{}
	cfg.OpenAI.MaxInputChars = 8000
	cfg.EmbedCache.TTLSec = 300
	cfg.EmbedCache.MaxEntries = 1024
	return cfg
}

func TestEmbedQueryCaching(t *testing.T) {
	provider := &fakeProvider{}
	now := time.Now()
	cache := NewEmbedCache(5*time.Minute, 16, func() time.Time { return now })
	s := NewEmbeddingService(newTestEmbeddingConfig(), provider, cache)

	ctx := context.Background()
	if _, err := s.EmbedQuery(ctx, "How to handle bedtime"); err != nil {
		t.Fatal(err)
	}
	// 大小写和空白差异命中同一个缓存键
	if _, err := s.EmbedQuery(ctx, "  how to   handle BEDTIME "); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 1 {
		t.Errorf("期望嵌入服务只被调用1次，实际%d次", provider.calls)
	}
}

func TestEmbedQueryCacheExpiry(t *testing.T) {
	provider := &fakeProvider{}
	now := time.Now()
	cache := NewEmbedCache(5*time.Minute, 16, func() time.Time { return now })
	s := NewEmbeddingService(newTestEmbeddingConfig(), provider, cache)

	ctx := context.Background()
	if _, err := s.EmbedQuery(ctx, "bedtime routine"); err != nil {
		t.Fatal(err)
	}

	// 过了TTL后同一查询需要重新计算
	now = now.Add(6 * time.Minute)
	if _, err := s.EmbedQuery(ctx, "bedtime routine"); err != nil {
		t.Fatal(err)
	}

	if provider.calls != 2 {
		t.Errorf("TTL过期后期望2次调用，实际%d次", provider.calls)
	}
}

func TestEmbedCacheEvictStale(t *testing.T) {
	now := time.Now()
	cache := NewEmbedCache(time.Minute, 16, func() time.Time { return now })

	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	now = now.Add(30 * time.Second)
	cache.Set("c", []float32{3})
	now = now.Add(45 * time.Second) // a、b已过期，c还有效

	if removed := cache.EvictStale(); removed != 2 {
		t.Errorf("期望清理2条，实际%d条", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("清理后期望剩1条，实际%d条", cache.Len())
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("未过期的条目不应被清理")
	}
}

func TestEmbedCacheMaxEntries(t *testing.T) {
	now := time.Now()
	cache := NewEmbedCache(time.Minute, 2, func() time.Time { return now })

	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	cache.Set("c", []float32{3}) // 满了且无过期条目，放弃写入

	if cache.Len() != 2 {
		t.Errorf("期望条目数2，实际%d", cache.Len())
	}
	if _, ok := cache.Get("c"); ok {
		t.Error("超限写入不应成功")
	}
}

func TestEmbedTextsTruncation(t *testing.T) {
	provider := &fakeProvider{}
	cfg := newTestEmbeddingConfig()
	cfg.OpenAI.MaxInputChars = 10
	s := NewEmbeddingService(cfg, provider, NewEmbedCache(time.Minute, 16, nil))

	long := "this text is far longer than ten characters"
	if _, err := s.EmbedTexts(context.Background(), []string{long}); err != nil {
		t.Fatal(err)
	}

	if got := provider.inputs[0][0]; len([]rune(got)) != 10 {
		t.Errorf("超长输入应截断到10字符，实际%q", got)
	}
}

func TestEmbedTextsProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream down")}
	s := NewEmbeddingService(newTestEmbeddingConfig(), provider, NewEmbedCache(time.Minute, 16, nil))

	if _, err := s.EmbedTexts(context.Background(), []string{"x"}); err == nil {
		t.Fatal("嵌入服务出错时应原样抛给调用方")
	}
	if s.Cache().Len() != 0 {
		t.Error("失败的结果不应进缓存")
	}
}
