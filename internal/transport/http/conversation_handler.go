package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homematch/backend/internal/auth"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage"
)

// ConversationHandler 处理买家与贷款方会话的 HTTP 请求
type ConversationHandler struct {
	conversations *service.ConversationService
	auth          *auth.Service
	log           *zap.Logger
}

// NewConversationHandler 创建会话处理器。
func NewConversationHandler(
	conversations *service.ConversationService,
	authService *auth.Service,
	log *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		auth:          authService,
		log:           log,
	}
}

type startConversationRequest struct {
	FinancingRequestID string `json:"financingRequestId" binding:"required"`
	LenderID           string `json:"lenderId" binding:"required"`
}

// Start 开启会话
// @Summary 开启会话
// @Description 贷款方针对一条融资申请开启会话，同一组合幂等返回既有会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body startConversationRequest true "申请与贷款方"
// @Success 201 {object} domain.Conversation
// @Failure 400 {object} Response "参数错误"
// @Failure 404 {object} Response "申请或贷款方不存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/conversations [post]
func (h *ConversationHandler) Start(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	conversation, err := h.conversations.Start(req.FinancingRequestID, req.LenderID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFinancingRequestNotFound),
			errors.Is(err, storage.ErrLenderNotFound):
			NotFound(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to start conversation", zap.Error(err))
			InternalError(c, MsgConversationStartFailed)
		}
		return
	}

	Created(c, conversation)
}

// ListMine 列出当前用户的会话
// @Summary 我的会话列表
// @Description 返回当前用户的会话列表，按最近消息倒序，带未读数
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{items=[]service.Overview,count=int}
// @Failure 401 {object} Response "未认证"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/conversations [get]
func (h *ConversationHandler) ListMine(c *gin.Context) {
	user, ok := currentUser(c, h.auth, h.log)
	if !ok {
		return
	}

	list, err := h.conversations.ListForUser(user)
	if err != nil {
		h.log.Error("failed to list conversations", zap.Error(err))
		InternalError(c, MsgConversationListFailed)
		return
	}

	Success(c, gin.H{
		"items": list,
		"count": len(list),
	})
}

// ListForLender 列出贷款方的会话
// @Summary 贷款方会话列表
// @Description 返回指定贷款方的会话列表，带买家侧未读数
// @Tags 会话
// @Produce json
// @Param id path string true "贷款方ID"
// @Success 200 {object} object{items=[]service.Overview,count=int}
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/lenders/{id}/conversations [get]
func (h *ConversationHandler) ListForLender(c *gin.Context) {
	list, err := h.conversations.ListForLender(c.Param("id"))
	if err != nil {
		h.log.Error("failed to list lender conversations", zap.Error(err))
		InternalError(c, MsgConversationListFailed)
		return
	}

	Success(c, gin.H{
		"items": list,
		"count": len(list),
	})
}

// Messages 获取会话消息
// @Summary 会话消息列表
// @Description 返回会话内全部消息，按时间升序；仅会话参与方可见
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 200 {object} object{items=[]domain.ConversationMessage,count=int}
// @Failure 401 {object} Response "未认证"
// @Failure 403 {object} Response "不是会话参与方"
// @Failure 404 {object} Response "会话不存在"
// @Router /v1/conversations/{id}/messages [get]
func (h *ConversationHandler) Messages(c *gin.Context) {
	user, ok := currentUser(c, h.auth, h.log)
	if !ok {
		return
	}
	conversationID, ok := parseConversationID(c)
	if !ok {
		return
	}

	messages, err := h.conversations.MessagesForUser(user, conversationID)
	if err != nil {
		h.respondConversationError(c, err, MsgMessageListFailed)
		return
	}

	Success(c, gin.H{
		"items": messages,
		"count": len(messages),
	})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Send 发送站内消息
// @Summary 发送站内消息
// @Description 以登录用户身份在会话中发送消息，触发对方的邮件通知
// @Tags 会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Param request body sendMessageRequest true "消息内容"
// @Success 201 {object} domain.ConversationMessage
// @Failure 400 {object} Response "内容为空或超长"
// @Failure 401 {object} Response "未认证"
// @Failure 403 {object} Response "不是会话参与方"
// @Failure 404 {object} Response "会话不存在"
// @Router /v1/conversations/{id}/messages [post]
func (h *ConversationHandler) Send(c *gin.Context) {
	user, ok := currentUser(c, h.auth, h.log)
	if !ok {
		return
	}
	conversationID, ok := parseConversationID(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.conversations.SendFromUser(user, conversationID, req.Text)
	if err != nil {
		h.respondConversationError(c, err, MsgMessageSendFailed)
		return
	}

	Created(c, message)
}

// MarkRead 标记会话已读
// @Summary 标记会话已读
// @Description 将贷款方发来的消息全部置为已读
// @Tags 会话
// @Security BearerAuth
// @Param id path int true "会话ID"
// @Success 204
// @Failure 401 {object} Response "未认证"
// @Failure 403 {object} Response "不是会话参与方"
// @Failure 404 {object} Response "会话不存在"
// @Router /v1/conversations/{id}/read [post]
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c, h.auth, h.log)
	if !ok {
		return
	}
	conversationID, ok := parseConversationID(c)
	if !ok {
		return
	}

	if err := h.conversations.MarkReadForUser(user, conversationID); err != nil {
		h.respondConversationError(c, err, MsgMarkReadFailed)
		return
	}

	NoContent(c)
}

func (h *ConversationHandler) respondConversationError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrMessageTooLong):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrNotParticipant):
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, storage.ErrConversationNotFound):
		NotFound(c, GetErrorMessage(err))
	default:
		h.log.Error("conversation request failed", zap.Error(err))
		InternalError(c, fallback)
	}
}

// parseConversationID 解析路径中的会话ID，失败时已写好响应。
func parseConversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, MsgInvalidRequest)
		return 0, false
	}
	return id, true
}
