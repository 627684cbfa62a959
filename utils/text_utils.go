package utils

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DeduplicateSlice 去重字符串切片
func DeduplicateSlice(input []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	for _, val := range input {
		val = strings.TrimSpace(val)
		if val != "" && !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}

	return result
}

// TruncateRunes 按字符数确定性截断文本，超长输入不拒绝只截断
func TruncateRunes(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}

// ParsePreferenceList 解析内容偏好字段
// 历史数据里同一个JSON列既可能存数组也可能存逗号分隔字符串，
// 统一在这里收口：nil/空→[]，数组透传，JSON数组解析，其余按逗号拆分
func ParsePreferenceList(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		return DeduplicateSlice(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return DeduplicateSlice(out)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return []string{}
		}
		var arr []string
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			return DeduplicateSlice(arr)
		}
		return DeduplicateSlice(strings.Split(s, ","))
	default:
		return []string{}
	}
}

// 生成内容的净化规则
// 话题闸门挡不住生成端泄漏的联系方式和脏词，出口处统一替换
var (
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[^\s]+`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
	contactPattern = regexp.MustCompile(`(?i)\b(call|text|whatsapp|telegram|dm|email)\s+(me|us)\b|\bcontact\s+(me|us)\s+at\b|\breach\s+out\s+to\s+me\b`)
	spacePattern   = regexp.MustCompile(`[ \t]{2,}`)
	profanityWords = []string{
		"damn", "hell no", "shit", "fuck", "bitch", "bastard", "asshole",
	}
)

// SanitizeTipText 净化生成的小贴士文本
// 移除URL、疑似电话号码、索要联系方式的话术和脏词
func SanitizeTipText(text string) string {
	out := urlPattern.ReplaceAllString(text, "")
	out = phonePattern.ReplaceAllString(out, "")
	out = contactPattern.ReplaceAllString(out, "")

	lower := strings.ToLower(out)
	for _, word := range profanityWords {
		for {
			idx := strings.Index(lower, word)
			if idx < 0 {
				break
			}
			out = out[:idx] + out[idx+len(word):]
			lower = lower[:idx] + lower[idx+len(word):]
		}
	}

	// 压缩净化后残留的多余空白
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
