package services

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"ai_tips_engine/utils"
)

// MaxSupportedAgeMonths 支持的孩子年龄上限（5岁）
const MaxSupportedAgeMonths = 60

// Verdict 话题闸门的判定结果
// 拒绝不是错误，是正常分支，调用方直接把Message返回给用户
type Verdict struct {
	OK       bool   `json:"ok"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
}

func rejectVerdict(category string) Verdict {
	return Verdict{OK: false, Category: category, Message: RejectMessages[category]}
}

// 年龄表述的识别模式，按出现频率排序
var agePatterns = []struct {
	re      *regexp.Regexp
	inMonth bool
}{
	{regexp.MustCompile(`(\d{1,2})\s*months?[\s-]*old`), true},
	{regexp.MustCompile(`(\d{1,2})[\s-]*years?[\s-]*old`), false},
	{regexp.MustCompile(`(\d{1,2})\s*(?:yo|y/o)\b`), false},
}

// ExtractAgeMonths 从查询中提取显式年龄，统一换算为月
func ExtractAgeMonths(query string) (int, bool) {
	for _, p := range agePatterns {
		if m := p.re.FindStringSubmatch(query); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if p.inMonth {
				return n, true
			}
			return n * 12, true
		}
	}
	return 0, false
}

// tryDecodeEncoded 尝试把整条查询当作base64或hex解码
// 解码结果必须是可打印ASCII才算有效，防止误判普通单词
func tryDecodeEncoded(query string) (string, bool) {
	s := strings.TrimSpace(query)
	if strings.ContainsAny(s, " \t\n") {
		return "", false
	}

	if len(s) >= 8 && len(s)%2 == 0 {
		if b, err := hex.DecodeString(s); err == nil && isPrintableASCII(b) {
			return strings.ToLower(string(b)), true
		}
	}

	if len(s) >= 12 && len(s)%4 == 0 {
		if b, err := base64.StdEncoding.DecodeString(s); err == nil && isPrintableASCII(b) {
			return strings.ToLower(string(b)), true
		}
	}

	return "", false
}

func isPrintableASCII(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 32 || c > 126 {
			return false
		}
	}
	return true
}

// Classify 判定查询是否在服务范围内
// 纯函数：只依赖输入文本和固定词表，无副作用
func (p *GuardrailPolicy) Classify(query string) Verdict {
	return p.classify(query, 0)
}

func (p *GuardrailPolicy) classify(query string, depth int) Verdict {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rejectVerdict(CategoryNonParenting)
	}

	// 防编码绕过：整条查询是base64/hex时先递归判定解码后的文本，
	// 解码文本被拒则原文按同一分类拒绝
	// base64区分大小写，解码必须用原文而不是小写后的文本
	if depth == 0 {
		if decoded, ok := tryDecodeEncoded(strings.TrimSpace(query)); ok {
			if v := p.classify(decoded, depth+1); !v.OK {
				return v
			}
		}
	}

	// 年龄上限优先于除解码递归外的所有检查
	ageMonths, hasAge := ExtractAgeMonths(q)
	if hasAge && ageMonths > MaxSupportedAgeMonths {
		return rejectVerdict(CategoryAgeOutOfScope)
	}

	// 固定顺序的拒绝规则组，第一条命中即返回
	for _, rule := range p.rules {
		if rule.match(q) {
			return rejectVerdict(rule.category)
		}
	}

	hasChild := containsAny(q, childTerms)
	hasCaregiver := containsAny(q, caregiverTerms)
	hasTopic := containsAny(q, p.topicTerms)
	ageInScope := hasAge && ageMonths <= MaxSupportedAgeMonths

	// 假设性框架必须同时带孩子指称和话题词，框架本身不能绕过范围检查
	if containsAny(q, hypotheticalTerms) {
		if !(hasChild && hasTopic) {
			return rejectVerdict(CategoryNonParenting)
		}
		return Verdict{OK: true}
	}

	// 严格口径：命中排除话题且没有领域内话题词时按领域外拒绝
	if len(p.excludedTerms) > 0 && !hasTopic && containsAny(q, p.excludedTerms) {
		return rejectVerdict(CategoryOutOfDomain)
	}

	if (hasChild && hasTopic) || (hasCaregiver && hasTopic) || (hasTopic && ageInScope) {
		return Verdict{OK: true}
	}

	return rejectVerdict(CategoryNonParenting)
}

// HasChildContext 轻量判断查询是否和孩子相关
// 宽口径拒绝为non_parenting但该判断为真时，调用方走软改写而不是直接拒绝
func HasChildContext(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if containsAny(q, childTerms) {
		return true
	}
	_, hasAge := ExtractAgeMonths(q)
	return hasAge
}

// 停用词表，提取关键词锚点时剔除
var pinStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "your": true,
	"is": true, "are": true, "was": true, "be": true, "been": true, "i": true,
	"me": true, "we": true, "he": true, "she": true, "it": true, "they": true,
	"to": true, "for": true, "of": true, "in": true, "on": true, "at": true,
	"with": true, "and": true, "or": true, "but": true, "not": true, "no": true,
	"do": true, "does": true, "did": true, "how": true, "what": true, "when": true,
	"why": true, "can": true, "could": true, "should": true, "would": true,
	"help": true, "about": true, "old": true, "year": true, "month": true,
	"years": true, "months": true, "yo": true, "some": true, "any": true,
	"that": true, "this": true, "his": true, "her": true, "their": true,
	"get": true, "make": true, "want": true, "need": true, "have": true, "has": true,
}

const (
	maxPinUnigrams = 6
	maxPinBigrams  = 4
)

var pinTokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// ExtractKeywordPins 从查询中提取关键词锚点
// 锚点用于硬性要求候选文本和查询有词面重叠，防止嵌入相似度的假阳性
// 返回至多6个单词锚点和4个连续双词锚点
func ExtractKeywordPins(query string) []string {
	tokens := pinTokenPattern.FindAllString(strings.ToLower(query), -1)

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || pinStopWords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	kept = utils.DeduplicateSlice(kept)

	pins := make([]string, 0, maxPinUnigrams+maxPinBigrams)
	for i, tok := range kept {
		if i >= maxPinUnigrams {
			break
		}
		pins = append(pins, tok)
	}

	bigrams := 0
	for i := 0; i+1 < len(kept) && bigrams < maxPinBigrams; i++ {
		pins = append(pins, kept[i]+" "+kept[i+1])
		bigrams++
	}

	return pins
}
