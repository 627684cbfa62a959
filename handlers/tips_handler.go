package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"ai_tips_engine/config"
	_ "ai_tips_engine/docs" // 导入 swagger 文档
	"ai_tips_engine/models"
	"ai_tips_engine/repository"
	"ai_tips_engine/services"
	"ai_tips_engine/utils"
)

// QueryTipsHandler godoc
// @Summary 查询个性化育儿小贴士
// @Description 按用户问题检索或生成小贴士，范围外的问题返回拒绝说明（code=1004），无结果返回code=1005
// @Tags 小贴士
// @Accept json
// @Produce json
// @Param request body models.TipsQueryRequest true "查询请求"
// @Success 200 {object} models.APIResponse{data=models.TipsQueryResult} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/tips/query [post]
func QueryTipsHandler(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	var req models.TipsQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorResponse(w, models.CodeInvalidParams, map[string]interface{}{})
		return
	}

	result, err := services.Tips().GetContextualTips(r.Context(), &req)
	if err != nil {
		utils.WriteCustomErrorResponse(w, models.CodeServerError, err.Error(), map[string]interface{}{})
		return
	}

	// 范围拒绝和零结果是正常业务分支，用专属code返回但HTTP仍是200
	switch result.Source {
	case services.SourceRejected:
		utils.WriteCustomErrorResponse(w, models.CodeQueryRejected, result.Message, result)
	case services.SourceNone:
		utils.WriteCustomErrorResponse(w, models.CodeNoTipsFound, result.Message, result)
	default:
		utils.WriteSuccessResponse(w, result)
	}
}

// GetTipHandler godoc
// @Summary 查询单条小贴士
// @Description 按ID查询小贴士详情
// @Tags 小贴士
// @Accept json
// @Produce json
// @Param tipId path string true "小贴士ID"
// @Success 200 {object} models.APIResponse{data=models.Tip} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Router /api/tips/{tipId} [get]
func GetTipHandler(w http.ResponseWriter, r *http.Request) {
	tipID := chi.URLParam(r, "tipId")
	if !utils.ValidatePathParam(w, "tipId", tipID) {
		return
	}

	tip, err := services.Tips().GetTip(tipID)
	if err != nil {
		utils.HandleServiceError(w, err, models.CodeTipNotFound)
		return
	}
	utils.WriteSuccessResponse(w, tip)
}

// RecordInteractionHandler godoc
// @Summary 记录用户对小贴士的交互
// @Description like/dislike互斥，save/unsave独立；生成内容首次like/save时随请求带上贴士全文完成懒持久化
// @Tags 交互
// @Accept json
// @Produce json
// @Param tipId path string true "小贴士ID"
// @Param userId path string true "用户ID"
// @Param request body models.InteractionRequest true "交互请求"
// @Success 200 {object} models.APIResponse{data=models.InteractionResult} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/tips/{tipId}/interactions/{userId} [post]
func RecordInteractionHandler(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	tipID := chi.URLParam(r, "tipId")
	userID := chi.URLParam(r, "userId")
	if !utils.ValidatePathParam(w, "tipId", tipID) || !utils.ValidatePathParam(w, "userId", userID) {
		return
	}

	var req models.InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorResponse(w, models.CodeInvalidParams, map[string]interface{}{})
		return
	}
	if !models.IsValidInteractionType(req.Type) {
		utils.WriteCustomErrorResponse(w, models.CodeInvalidParams, "未知的交互类型", map[string]interface{}{
			"type": req.Type,
		})
		return
	}

	resolvedID, err := services.Tips().RecordTipInteraction(r.Context(), userID, tipID, req.Type, req.Tip)
	if err != nil {
		var nfe *repository.NotFoundError
		if errors.As(err, &nfe) {
			utils.WriteCustomErrorResponse(w, models.CodeTipNotFound, nfe.Error(), map[string]interface{}{})
			return
		}
		utils.WriteCustomErrorResponse(w, models.CodeServerError, err.Error(), map[string]interface{}{})
		return
	}

	utils.WriteSuccessResponse(w, models.InteractionResult{TipID: resolvedID, Type: req.Type})
}

// GetProfileHandler godoc
// @Summary 获取用户偏好画像概览
// @Description 返回画像状态、交互记录和问卷选项（不含原始向量）
// @Tags 用户画像
// @Accept json
// @Produce json
// @Param userId path string true "用户ID"
// @Success 200 {object} models.APIResponse{data=models.ProfileResult} "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Router /api/profile/{userId} [get]
func GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !utils.ValidatePathParam(w, "userId", userID) {
		return
	}

	result := models.ProfileResult{UserID: userID}

	profile, err := repository.GetProfile(userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		utils.WriteCustomErrorResponse(w, models.CodeDatabaseError, err.Error(), map[string]interface{}{})
		return
	}
	if profile != nil {
		result.HasProfile = true
		result.InteractionCount = profile.InteractionCount
	}

	if interactions, err := repository.ListUserInteractions(userID); err == nil {
		result.Interactions = interactions
	}
	if survey, err := repository.GetSurveyResponses(userID); err == nil {
		result.Survey = survey
	}

	utils.WriteSuccessResponse(w, result)
}

// SubmitSurveyHandler godoc
// @Summary 提交偏好问卷
// @Description 保存问卷选项并重算画像向量，同一小节重复提交整体覆盖
// @Tags 用户画像
// @Accept json
// @Produce json
// @Param userId path string true "用户ID"
// @Param request body models.SurveyRequest true "问卷选项"
// @Success 200 {object} models.APIResponse "成功"
// @Failure 400 {object} models.APIResponse "参数错误"
// @Failure 500 {object} models.APIResponse "服务器错误"
// @Router /api/profile/{userId}/survey [post]
func SubmitSurveyHandler(w http.ResponseWriter, r *http.Request, cfg *config.Config) {
	userID := chi.URLParam(r, "userId")
	if !utils.ValidatePathParam(w, "userId", userID) {
		return
	}

	var req models.SurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorResponse(w, models.CodeInvalidParams, map[string]interface{}{})
		return
	}
	if len(req.Responses) == 0 {
		utils.WriteErrorResponse(w, models.CodeMissingParams, map[string]interface{}{
			"param": "responses",
		})
		return
	}

	if err := services.Preference().SubmitSurvey(r.Context(), userID, req.Responses); err != nil {
		utils.WriteCustomErrorResponse(w, models.CodeServerError, err.Error(), map[string]interface{}{})
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user_id":  userID,
		"sections": len(req.Responses),
	})
}

func RegisterRoutes(r *chi.Mux, cfg *config.Config) {
	// Swagger 文档
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // Swagger JSON 的 URL
	))

	r.Post("/api/tips/query", func(w http.ResponseWriter, r *http.Request) {
		QueryTipsHandler(w, r, cfg)
	})

	r.Get("/api/tips/stream", func(w http.ResponseWriter, r *http.Request) {
		StreamTipsHandler(w, r, cfg)
	})

	r.Get("/api/tips/{tipId}", GetTipHandler)

	r.Post("/api/tips/{tipId}/interactions/{userId}", func(w http.ResponseWriter, r *http.Request) {
		RecordInteractionHandler(w, r, cfg)
	})

	r.Get("/api/profile/{userId}", GetProfileHandler)

	r.Post("/api/profile/{userId}/survey", func(w http.ResponseWriter, r *http.Request) {
		SubmitSurveyHandler(w, r, cfg)
	})
}
