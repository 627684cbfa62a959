package services

import "strings"

// 话题闸门的分类结果
const (
	CategoryAgeOutOfScope = "age_out_of_scope"
	CategoryDangerous     = "dangerous_content"
	CategorySelfHarm      = "self_harm"
	CategoryAdultContent  = "adult_content"
	CategoryHarassment    = "harassment"
	CategoryWeapons       = "weapons"
	CategoryDrugs         = "drugs_alcohol"
	CategoryFinance       = "finance"
	CategoryPolitics      = "politics"
	CategoryGambling      = "gambling"
	CategoryCareer        = "career_advice"
	CategoryHacking       = "illegal_activity"
	CategorySoftware      = "software_it"
	CategoryMedicalLegal  = "medical_legal"
	CategoryNonParenting  = "non_parenting"
	CategoryOutOfDomain   = "unsupported_topic"
)

// RejectMessages 各拒绝分类对应的用户可见文案
// 自伤类是特殊分类，给关怀性文案而不是通用拒绝
var RejectMessages = map[string]string{
	CategoryAgeOutOfScope: "我们目前只支持0-5岁孩子的育儿问题。",
	CategoryDangerous:     "这个问题涉及危险内容，无法提供建议。",
	CategorySelfHarm:      "听起来你现在很难受。你并不孤单，请立即联系当地的心理危机干预热线，和专业人士聊一聊。",
	CategoryAdultContent:  "这个话题超出了育儿建议的范围。",
	CategoryHarassment:    "这个问题涉及不当内容，无法提供建议。",
	CategoryWeapons:       "这个话题超出了育儿建议的范围。",
	CategoryDrugs:         "这个话题超出了育儿建议的范围。",
	CategoryFinance:       "我们不提供理财或投资建议。",
	CategoryPolitics:      "我们不讨论政治话题。",
	CategoryGambling:      "这个话题超出了育儿建议的范围。",
	CategoryCareer:        "我们不提供职业发展建议。",
	CategoryHacking:       "这个问题涉及违法内容，无法提供建议。",
	CategorySoftware:      "我们不提供软件或IT技术支持。",
	CategoryMedicalLegal:  "涉及医疗或法律的问题请咨询专业人士。",
	CategoryNonParenting:  "请提一个和0-5岁孩子相关的育儿问题。",
	CategoryOutOfDomain:   "这个话题不在当前支持的学习领域内（语言发展、科学启蒙、读写基础、社会情感）。",
}

// rejectRule 一条拒绝规则，按声明顺序评估，第一条命中即生效
type rejectRule struct {
	category string
	match    func(query string) bool
}

// containsAny 判断文本是否包含任一关键词
func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// 词表：闸门只做词法判断，不依赖外部模型
var (
	childTerms = []string{
		"baby", "infant", "newborn", "toddler", "preschooler", "my child",
		"my son", "my daughter", "my kid", "my little one", "year old", "month old",
		"year-old", "month-old", "yo ", " yo",
	}

	caregiverTerms = []string{
		"parent", "mom", "dad", "mother", "father", "grandma", "grandpa",
		"caregiver", "nanny", "babysitter", "daycare",
	}

	// 宽口径育儿话题词表
	broadTopicTerms = []string{
		"tantrum", "bedtime", "sleep", "nap", "feeding", "eating", "meal",
		"picky eater", "potty", "toilet", "diaper", "screen time", "sharing",
		"biting", "hitting", "crying", "separation anxiety", "discipline",
		"talking", "speech", "words", "vocabulary", "language", "reading",
		"books", "story", "letters", "alphabet", "counting", "numbers",
		"colors", "shapes", "play", "playing", "toys", "emotions", "feelings",
		"friends", "kindergarten", "preschool", "milestone", "development",
		"learn", "learning", "teething", "weaning", "breastfeeding", "crawling",
		"walking", "singing", "drawing", "nature", "curiosity", "experiment",
		"babbling", "rhymes", "conversation", "why questions", "sorting",
		"patterns", "science", "writing", "literacy", "phonics", "empathy",
		"taking turns", "self-regulation", "social",
	}

	// 严格口径：只保留四个学习领域的话题词
	strictTopicTerms = []string{
		// 语言发展
		"talking", "speech", "words", "vocabulary", "language", "babbling",
		"singing", "rhymes", "conversation",
		// 科学启蒙
		"counting", "numbers", "shapes", "nature", "curiosity", "experiment",
		"why questions", "sorting", "patterns", "science",
		// 读写基础
		"reading", "books", "story", "letters", "alphabet", "writing",
		"drawing", "literacy", "phonics",
		// 社会情感
		"emotions", "feelings", "sharing", "empathy", "friends", "taking turns",
		"separation anxiety", "self-regulation", "social",
	}

	// 严格口径下被显式排除的育儿话题
	// 这些词在宽口径里是合法话题，但不属于四个学习领域
	strictExcludedTerms = []string{
		"tantrum", "discipline", "timeout", "punishment",
		"sleep", "bedtime", "nap",
		"feeding", "eating", "meal", "nutrition", "picky eater",
		"potty", "toilet", "diaper",
		"screen time", "tablet", "tv",
		"homework",
		"travel", "flight", "road trip",
		"fever", "medicine", "vaccine", "doctor", "sick",
	}

	// 假设性框架词，单靠框架不能绕过范围检查
	hypotheticalTerms = []string{
		"hypothetically", "assume", "let's say", "lets say", "suppose",
	}

	// 哺乳/断奶词汇在成人内容检查里放行
	breastfeedingAllowlist = []string{
		"breastfeed", "breast milk", "breast-feeding", "nursing", "weaning",
		"latch", "lactation",
	}
)

// rejectBattery 固定顺序的拒绝规则组
// 顺序即优先级：多条规则可能同时命中，第一条声明的胜出
func rejectBattery() []rejectRule {
	return []rejectRule{
		{CategoryDangerous, func(q string) bool {
			return containsAny(q, []string{"kill", "hurt someone", "violence", "violent", "abuse", "poison", "how to make a bomb", "explosive"})
		}},
		{CategorySelfHarm, func(q string) bool {
			return containsAny(q, []string{"suicide", "self-harm", "self harm", "end my life", "hurt myself", "kill myself"})
		}},
		{CategoryAdultContent, func(q string) bool {
			if containsAny(q, breastfeedingAllowlist) {
				return false
			}
			return containsAny(q, []string{"sex", "sexual", "porn", "nude", "erotic", "breast"})
		}},
		{CategoryHarassment, func(q string) bool {
			return containsAny(q, []string{"hate", "racist", "slur", "bully someone", "harass"})
		}},
		{CategoryWeapons, func(q string) bool {
			return containsAny(q, []string{"gun", "firearm", "knife fight", "weapon", "ammunition"})
		}},
		{CategoryDrugs, func(q string) bool {
			return containsAny(q, []string{"drugs", "cocaine", "marijuana", "weed", "alcohol", "get drunk", "vape"})
		}},
		{CategoryFinance, func(q string) bool {
			return containsAny(q, []string{"invest", "stocks", "crypto", "bitcoin", "mortgage", "loan", "savings account"})
		}},
		{CategoryPolitics, func(q string) bool {
			return containsAny(q, []string{"election", "vote for", "president", "political party", "congress"})
		}},
		{CategoryGambling, func(q string) bool {
			return containsAny(q, []string{"gambling", "casino", "poker", "betting", "lottery"})
		}},
		{CategoryCareer, func(q string) bool {
			return containsAny(q, []string{"resume", "job interview", "promotion", "salary negotiation", "career"})
		}},
		{CategoryHacking, func(q string) bool {
			return containsAny(q, []string{"hack", "steal", "shoplift", "counterfeit", "pirate software", "crack password"})
		}},
		{CategorySoftware, func(q string) bool {
			return containsAny(q, []string{"debug", "source code", "install windows", "programming", "javascript", "database error"})
		}},
		{CategoryMedicalLegal, func(q string) bool {
			return containsAny(q, []string{"diagnose", "prescription", "dosage", "lawsuit", "sue", "custody battle", "legal advice"})
		}},
	}
}

// GuardrailPolicy 一套完整的范围判定策略
// 宽口径和严格口径共用同一套拒绝规则组，只在话题词表上不同
type GuardrailPolicy struct {
	Name          string
	topicTerms    []string
	excludedTerms []string // 命中且无领域内话题词时按CategoryOutOfDomain拒绝
	rules         []rejectRule
}

// BroadParentingPolicy 宽口径育儿范围策略
func BroadParentingPolicy() *GuardrailPolicy {
	return &GuardrailPolicy{
		Name:       "broad_parenting",
		topicTerms: broadTopicTerms,
		rules:      rejectBattery(),
	}
}

// StrictLearningDomainsPolicy 严格限定四个学习领域的策略
// 语言发展、科学启蒙、读写基础、社会情感；管教、睡眠、喂养、
// 如厕、屏幕时间、作业、出行、医疗等话题显式排除
func StrictLearningDomainsPolicy() *GuardrailPolicy {
	return &GuardrailPolicy{
		Name:          "strict_learning_domains",
		topicTerms:    strictTopicTerms,
		excludedTerms: strictExcludedTerms,
		rules:         rejectBattery(),
	}
}
