package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
	"ai_tips_engine/models"
	"ai_tips_engine/utils"
)

// GenerationOptions 生成调用的上下文参数
type GenerationOptions struct {
	StrictDomains      bool     // 限定四个学习领域
	ContentPreferences []string // 用户声明的内容风格偏好
	ProfileHints       []string // 从历史偏好提炼的提示词
	AvoidTopics        []string // 用户明确不喜欢的方向
	Steering           string   // 软改写时附加的引导指令
	Count              int
}

// GenerationService 模型生成小贴士
// 库内检索无结果时兜底生成，生成结果和检索结果走同一套打分
type GenerationService struct {
	generator  TextGenerator
	maxRetries int
	wait       func(ctx context.Context, d time.Duration) error // 测试中注入免等待实现
}

// NewGenerationService 创建生成服务
func NewGenerationService(cfg *config.Config, generator TextGenerator) *GenerationService {
	return &GenerationService{
		generator:  generator,
		maxRetries: cfg.OpenAI.MaxRetries,
		wait: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

const tipSystemPrompt = `You are an early childhood development assistant writing practical parenting tips for children aged 0-5.
Each tip must have a short actionable title, a 2-3 sentence body, and an optional details field with one concrete example.
Never include URLs, phone numbers, or requests to contact anyone.
Respond with a JSON array only, no markdown, no commentary. Each element: {"title": "...", "body": "...", "details": "...", "category": "..."}.
Category must be one of: language_development, early_science_skills, literacy_foundations, social_emotional_learning.`

const tipStreamSystemPrompt = `You are an early childhood development assistant writing practical parenting tips for children aged 0-5.
Each tip must have a short actionable title, a 2-3 sentence body, and an optional details field with one concrete example.
Never include URLs, phone numbers, or requests to contact anyone.
Output one tip per line as a single-line JSON object, nothing else: {"title": "...", "body": "...", "details": "...", "category": "..."}.
Category must be one of: language_development, early_science_skills, literacy_foundations, social_emotional_learning.`

// buildUserPrompt 拼装生成请求的用户侧提示词
func buildUserPrompt(query string, opts GenerationOptions) string {
	var b strings.Builder
	count := opts.Count
	if count <= 0 {
		count = 5
	}
	fmt.Fprintf(&b, "Write %d parenting tips for this request: %s\n", count, query)

	if opts.StrictDomains {
		b.WriteString("Only cover these learning domains: language development, early science, early literacy, social emotional skills.\n")
	}
	if len(opts.ContentPreferences) > 0 {
		fmt.Fprintf(&b, "Preferred style: %s.\n", strings.Join(opts.ContentPreferences, ", "))
	}
	if len(opts.ProfileHints) > 0 {
		fmt.Fprintf(&b, "This parent previously enjoyed tips about: %s.\n", strings.Join(opts.ProfileHints, "; "))
	}
	if len(opts.AvoidTopics) > 0 {
		fmt.Fprintf(&b, "Avoid tips similar to: %s.\n", strings.Join(opts.AvoidTopics, "; "))
	}
	if opts.Steering != "" {
		b.WriteString(opts.Steering)
		b.WriteString("\n")
	}
	return b.String()
}

// tipPayload 模型输出的单条贴士
type tipPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Details  string `json:"details"`
	Category string `json:"category"`
}

var generatedCategories = map[string]bool{
	models.CategoryLanguage:        true,
	models.CategoryScience:         true,
	models.CategoryLiteracy:        true,
	models.CategorySocialEmotional: true,
}

// toTip 清洗并落成Tip，标题或正文为空时丢弃
func (p *tipPayload) toTip() *models.Tip {
	title := utils.SanitizeTipText(p.Title)
	body := utils.SanitizeTipText(p.Body)
	if title == "" || body == "" {
		return nil
	}

	details := utils.SanitizeTipText(p.Details)
	category := strings.ToLower(strings.TrimSpace(p.Category))
	if !generatedCategories[category] {
		category = models.CategoryGenerated
	}

	return &models.Tip{
		ID:          uuid.NewString(),
		Title:       title,
		Body:        body,
		Details:     details,
		Category:    category,
		Source:      models.TipSourceAI,
		Fingerprint: utils.TipFingerprint(title, body, details),
	}
}

// extractJSONArray 从模型输出中截取JSON数组
// 模型偶尔会在数组前后加markdown围栏或说明文字，取第一个[到最后一个]
func extractJSONArray(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// parseTipArray 解析模型输出的贴士数组
func parseTipArray(raw string) ([]*models.Tip, error) {
	arr, ok := extractJSONArray(raw)
	if !ok {
		return nil, fmt.Errorf("输出中找不到JSON数组")
	}

	var payloads []tipPayload
	if err := json.Unmarshal([]byte(arr), &payloads); err != nil {
		return nil, fmt.Errorf("解析贴士数组失败: %w", err)
	}

	tips := make([]*models.Tip, 0, len(payloads))
	for i := range payloads {
		if tip := payloads[i].toTip(); tip != nil {
			tips = append(tips, tip)
		}
	}
	if len(tips) == 0 {
		return nil, fmt.Errorf("数组中没有可用的贴士")
	}
	return tips, nil
}

// GenerateTips 批量生成贴士
// 失败按2s/4s/8s退避重试，限流和配额错误不重试，重试耗尽后返回兜底贴士
func (s *GenerationService) GenerateTips(ctx context.Context, query string, opts GenerationOptions) ([]*models.Tip, bool, error) {
	userPrompt := buildUserPrompt(query, opts)

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(2<<(attempt-1)) * time.Second
			logger.Warn("生成重试", "attempt", attempt+1, "backoff", backoff.String(), "error", lastErr.Error())
			if err := s.wait(ctx, backoff); err != nil {
				return nil, false, err
			}
		}

		raw, err := s.generator.Complete(ctx, tipSystemPrompt, userPrompt)
		if err != nil {
			if IsRateLimitError(err) {
				logger.Warn("生成被限流，直接走兜底", "error", err.Error())
				return s.fallbackTips(query, opts.Count), true, nil
			}
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			lastErr = err
			continue
		}

		tips, err := parseTipArray(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return tips, false, nil
	}

	logger.Error("生成重试耗尽，走兜底贴士", "error", lastErr.Error())
	return s.fallbackTips(query, opts.Count), true, nil
}

// StreamTips 流式生成贴士，模型按NDJSON逐行输出
// 每凑齐一行就解析下发一条，坏行丢弃不中断，每行之间检查取消
func (s *GenerationService) StreamTips(ctx context.Context, query string, opts GenerationOptions, onTip func(*models.Tip) error) (int, error) {
	userPrompt := buildUserPrompt(query, opts)

	emitted := 0
	var buf strings.Builder

	processLine := func(line string) error {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			return nil
		}
		var payload tipPayload
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			logger.Debug("丢弃无法解析的流式行", "line_len", len(line))
			return nil
		}
		tip := payload.toTip()
		if tip == nil {
			return nil
		}
		if err := onTip(tip); err != nil {
			return err
		}
		emitted++
		return nil
	}

	err := s.generator.StreamComplete(ctx, tipStreamSystemPrompt, userPrompt, func(chunk string) error {
		buf.WriteString(chunk)
		for {
			text := buf.String()
			idx := strings.Index(text, "\n")
			if idx < 0 {
				return nil
			}
			line := text[:idx]
			buf.Reset()
			buf.WriteString(text[idx+1:])
			if err := processLine(line); err != nil {
				return err
			}
		}
	})
	if err != nil {
		return emitted, err
	}

	// 流结束后冲掉没有换行结尾的最后一行
	if err := processLine(buf.String()); err != nil {
		return emitted, err
	}
	return emitted, nil
}

// 兜底贴士模板，模型不可用时保证接口仍有产出
var fallbackTemplates = []tipPayload{
	{
		Title:    "Talk through your day",
		Body:     "Narrate everyday activities out loud while your child watches or helps. Hearing rich language in context is one of the strongest drivers of vocabulary growth.",
		Details:  "While making breakfast, describe each step: now we pour the milk, the milk is cold and white.",
		Category: models.CategoryLanguage,
	},
	{
		Title:    "Count everything together",
		Body:     "Turn daily moments into counting games. Count stairs, toys, or snack pieces to build early number sense without sitting down for a lesson.",
		Details:  "Count the buttons on a coat while getting dressed, then ask how many are left as you close each one.",
		Category: models.CategoryScience,
	},
	{
		Title:    "Read the same book again",
		Body:     "Repeated readings of a favorite book deepen comprehension and word learning. Let your child fill in words they remember as you pause.",
		Details:  "Pause before the last word of a familiar sentence and let your child finish it.",
		Category: models.CategoryLiteracy,
	},
	{
		Title:    "Name the feeling",
		Body:     "When emotions run high, calmly name what your child seems to feel. Putting feelings into words is the first step toward managing them.",
		Details:  "Say: you look frustrated because the tower fell down. Want to build it again together?",
		Category: models.CategorySocialEmotional,
	},
	{
		Title:    "Follow their questions",
		Body:     "When your child asks why, explore the answer together instead of giving a quick reply. Shared wondering builds curiosity and thinking skills.",
		Details:  "If they ask why leaves fall, pick some up on a walk and look at them together.",
		Category: models.CategoryScience,
	},
}

// fallbackTips 生成兜底贴士，标题里带上用户的原始问题保持关联感
func (s *GenerationService) fallbackTips(query string, count int) []*models.Tip {
	if count <= 0 || count > len(fallbackTemplates) {
		count = len(fallbackTemplates)
	}

	query = strings.TrimSpace(query)
	tips := make([]*models.Tip, 0, count)
	for i := 0; i < count; i++ {
		payload := fallbackTemplates[i]
		tip := payload.toTip()
		if tip == nil {
			continue
		}
		if query != "" {
			tip.Details = strings.TrimSpace(tip.Details + " Related to your question: " + utils.TruncateRunes(query, 120))
			tip.Fingerprint = utils.TipFingerprint(tip.Title, tip.Body, tip.Details)
		}
		tips = append(tips, tip)
	}
	return tips
}
