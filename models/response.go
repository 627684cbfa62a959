package models

// 响应码定义
const (
	// 成功
	CodeSuccess = 0

	// 客户端错误 (1000-1999)
	CodeInvalidParams  = 1000 // 无效的参数
	CodeMissingParams  = 1001 // 缺少必要参数
	CodeUserNotFound   = 1002 // 用户不存在
	CodeTipNotFound    = 1003 // 小贴士不存在
	CodeQueryRejected  = 1004 // 查询不在服务范围内（非错误，正常分支）
	CodeNoTipsFound    = 1005 // 没有符合条件的小贴士（非错误，正常分支）
	CodeStreamAuthFail = 1006 // 流式连接鉴权失败

	// 服务端错误 (2000-2999)
	CodeServerError     = 2000 // 服务器内部错误
	CodeDatabaseError   = 2001 // 数据库错误
	CodeEmbeddingError  = 2002 // 嵌入服务错误
	CodeGenerationError = 2003 // 生成服务错误
)

// 错误码对应的消息
var CodeMessages = map[int]string{
	CodeSuccess:         "success",
	CodeInvalidParams:   "无效的参数",
	CodeMissingParams:   "缺少必要参数",
	CodeUserNotFound:    "用户不存在",
	CodeTipNotFound:     "小贴士不存在",
	CodeQueryRejected:   "查询不在服务范围内",
	CodeNoTipsFound:     "没有符合条件的小贴士",
	CodeStreamAuthFail:  "流式连接鉴权失败",
	CodeServerError:     "服务器内部错误",
	CodeDatabaseError:   "数据库错误",
	CodeEmbeddingError:  "嵌入服务错误",
	CodeGenerationError: "生成服务错误",
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Code:    CodeSuccess,
		Message: CodeMessages[CodeSuccess],
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, data interface{}) APIResponse {
	message, exists := CodeMessages[code]
	if !exists {
		message = "未知错误"
	}
	return APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewCustomErrorResponse 创建自定义错误消息的响应
func NewCustomErrorResponse(code int, message string, data interface{}) APIResponse {
	return APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}
