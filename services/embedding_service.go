package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/utils"
)

// Clock 可注入的时钟，测试中用假时钟控制缓存过期
type Clock func() time.Time

// EmbeddingProvider 外部嵌入服务的最小接口
type EmbeddingProvider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type cacheEntry struct {
	vector   []float32
	expireAt time.Time
}

// EmbedCache 查询嵌入的短时缓存
// 进程内尽力而为的结构，条目随时可丢，最坏情况多打一次嵌入服务
type EmbedCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        Clock
}

// NewEmbedCache 创建嵌入缓存，now为nil时使用系统时钟
func NewEmbedCache(ttl time.Duration, maxEntries int, now Clock) *EmbedCache {
	if now == nil {
		now = time.Now
	}
	return &EmbedCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get 查缓存，过期条目顺手删除
func (c *EmbedCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expireAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.vector, true
}

// Set 写缓存，超过条目上限时先整体清理过期条目，仍然超限则放弃写入
func (c *EmbedCache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictStaleLocked()
	}
	if len(c.entries) >= c.maxEntries {
		return // 缓存只是优化，放弃写入不影响正确性
	}
	c.entries[key] = cacheEntry{vector: vector, expireAt: c.now().Add(c.ttl)}
}

// EvictStale 清理全部过期条目，由调度器周期调用
func (c *EmbedCache) EvictStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictStaleLocked()
}

func (c *EmbedCache) evictStaleLocked() int {
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expireAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len 当前缓存条目数
func (c *EmbedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EmbeddingService 嵌入网关：包装外部嵌入服务并缓存查询嵌入
// 不重试也不改状态，失败原样抛给调用方决定降级
type EmbeddingService struct {
	provider      EmbeddingProvider
	cache         *EmbedCache
	maxInputChars int
}

// NewEmbeddingService 创建嵌入网关
func NewEmbeddingService(cfg *config.Config, provider EmbeddingProvider, cache *EmbedCache) *EmbeddingService {
	if cache == nil {
		cache = NewEmbedCache(time.Duration(cfg.EmbedCache.TTLSec)*time.Second, cfg.EmbedCache.MaxEntries, nil)
	}
	return &EmbeddingService{
		provider:      provider,
		cache:         cache,
		maxInputChars: cfg.OpenAI.MaxInputChars,
	}
}

// Cache 暴露缓存给调度器做周期清理
func (s *EmbeddingService) Cache() *EmbedCache {
	return s.cache
}

// normalizeCacheKey 归一化缓存键：小写并压缩空白
func normalizeCacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// EmbedQuery 计算查询文本的嵌入，同一会话窗口内的重复查询命中缓存
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := normalizeCacheKey(text)
	if vec, ok := s.cache.Get(key); ok {
		logger.Debug("查询嵌入命中缓存", "key_len", len(key))
		return vec, nil
	}

	vectors, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, vectors[0])
	return vectors[0], nil
}

// EmbedTexts 批量计算嵌入，超长输入确定性截断而不是拒绝
func (s *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = utils.TruncateRunes(t, s.maxInputChars)
	}

	vectors, err := s.provider.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("嵌入服务调用失败: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("嵌入服务返回数量不符: 期望%d实际%d", len(inputs), len(vectors))
	}
	return vectors, nil
}
