package models

// APIResponse 通用API响应
type APIResponse struct {
	Code    int         `json:"code" example:"0"`
	Message string      `json:"message" example:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// 生成模式
const (
	GenerateModeGenerate = "generate" // 只走模型生成
	GenerateModeDatabase = "database" // 只走库内检索
	GenerateModeHybrid   = "hybrid"   // 先检索，无结果再生成
)

// TipsQueryRequest 小贴士查询请求
type TipsQueryRequest struct {
	UserID             string   `json:"user_id" example:"u_1001"`
	Prompt             string   `json:"prompt" example:"how can I help my 3 year old learn new words"`
	ContentPreferences []string `json:"content_preferences,omitempty" example:"short,playful"`
	GenerateMode       string   `json:"generate_mode" example:"hybrid"` // generate / database / hybrid
	Limit              int      `json:"limit,omitempty" example:"5"`
}

// TipsQueryResult 小贴士查询结果
type TipsQueryResult struct {
	Tips           []RankedTip `json:"tips"`
	IsPersonalized bool        `json:"is_personalized"`
	IsGenerated    bool        `json:"is_generated"`
	Source         string      `json:"source"` // database / generated / fallback / none
	Message        string      `json:"message,omitempty"`
}

// 流式消息类型
const (
	StreamTypePhase = "phase"
	StreamTypeTip   = "tip"
	StreamTypeBatch = "batch"
	StreamTypeDone  = "done"
	StreamTypeError = "error"
)

// StreamMessage 流式连接下发的一帧消息
type StreamMessage struct {
	Type    string      `json:"type" example:"tip"`
	Phase   string      `json:"phase,omitempty" example:"generating"`
	Tip     *RankedTip  `json:"tip,omitempty"`
	Tips    []RankedTip `json:"tips,omitempty"`
	Message string      `json:"message,omitempty"`
}

// StreamAuthRequest 流式连接的鉴权握手帧，必须是客户端的第一帧
type StreamAuthRequest struct {
	Token string `json:"token" example:"stream-token"`
}

// SurveyRequest 问卷提交请求
type SurveyRequest struct {
	Responses []SurveyResponse `json:"responses"`
}

// InteractionRequest 交互提交请求
// 生成内容尚未落库时客户端随首次like/save带上贴士全文，服务端懒持久化
type InteractionRequest struct {
	Type string `json:"type" example:"like"` // like / dislike / save / unsave
	Tip  *Tip   `json:"tip,omitempty"`
}

// InteractionResult 交互提交结果
type InteractionResult struct {
	TipID string `json:"tip_id"` // 懒持久化可能把重复内容解析到已有ID
	Type  string `json:"type"`
}

// ProfileResult 用户画像查询结果
type ProfileResult struct {
	UserID           string           `json:"user_id"`
	HasProfile       bool             `json:"has_profile"`
	InteractionCount int              `json:"interaction_count"`
	Interactions     []Interaction    `json:"interactions,omitempty"`
	Survey           []SurveyResponse `json:"survey,omitempty"`
}
