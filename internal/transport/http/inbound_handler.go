package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homematch/backend/internal/service"
)

// InboundHandler 处理入站邮件回复的 HTTP 入口：
// 邮件服务商的 webhook 投递和通知邮件内嵌表单的提交。
type InboundHandler struct {
	inbound *service.InboundService
	log     *zap.Logger
}

// NewInboundHandler 创建入站回复处理器。
func NewInboundHandler(inbound *service.InboundService, log *zap.Logger) *InboundHandler {
	return &InboundHandler{inbound: inbound, log: log}
}

type inboundEmailRequest struct {
	From      string `json:"from" binding:"required"`
	To        string `json:"to" binding:"required"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html"`
	MessageID string `json:"message_id"`
}

type inboundEmailResponse struct {
	MessageID string `json:"messageId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Webhook 接收邮件服务商的入站投递
// @Summary 入站邮件 webhook
// @Description 邮件服务商把发往回信地址的邮件投递到此端点，解析后写入对应会话
// @Tags 入站回复
// @Accept json
// @Produce json
// @Param request body inboundEmailRequest true "入站邮件"
// @Success 200 {object} inboundEmailResponse "已入库或重复投递"
// @Failure 400 {object} Response "回信地址无法识别"
// @Failure 403 {object} Response "发件人不是会话参与方"
// @Failure 500 {object} Response "持久化失败"
// @Router /v1/inbound/email [post]
func (h *InboundHandler) Webhook(c *gin.Context) {
	var req inboundEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.inbound.HandleEmail(service.InboundEmail{
		Recipient: req.To,
		From:      req.From,
		Subject:   req.Subject,
		Text:      req.Text,
		HTML:      req.HTML,
		MessageID: req.MessageID,
	})
	if err != nil {
		h.respondInboundError(c, err)
		return
	}

	// 重复投递按成功处理，不产生第二条消息
	if message == nil {
		SuccessWithMsg(c, "重复投递已忽略", inboundEmailResponse{Duplicate: true})
		return
	}

	Success(c, inboundEmailResponse{MessageID: message.ID})
}

type inlineReplyRequest struct {
	ConversationID int64  `form:"conversation_id" json:"conversation_id" binding:"required"`
	Message        string `form:"message" json:"message" binding:"required"`
}

// InlineReply 接收通知邮件内嵌表单的回复
// @Summary 行内回复表单
// @Description 通知邮件里的 AMP 表单把回复直接提交到此端点，发件人取自 X-Sender-Email 头
// @Tags 入站回复
// @Accept x-www-form-urlencoded
// @Accept json
// @Produce json
// @Param X-Sender-Email header string true "发件人邮箱"
// @Param conversation_id formData int true "会话ID"
// @Param message formData string true "回复内容，最长5000字符"
// @Success 200 {object} inboundEmailResponse "已入库"
// @Failure 400 {object} Response "内容为空、超长或会话不存在"
// @Failure 403 {object} Response "发件人不是会话参与方"
// @Failure 500 {object} Response "持久化失败"
// @Router /v1/inbound/inline-reply [post]
func (h *InboundHandler) InlineReply(c *gin.Context) {
	var req inlineReplyRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	senderEmail := c.GetHeader("X-Sender-Email")
	if senderEmail == "" {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.inbound.HandleInlineReply(service.InlineReply{
		ConversationID: req.ConversationID,
		SenderEmail:    senderEmail,
		Text:           req.Message,
	})
	if err != nil {
		h.respondInboundError(c, err)
		return
	}

	Success(c, inboundEmailResponse{MessageID: message.ID})
}

func (h *InboundHandler) respondInboundError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAddressUnrecognized),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMessageTooLong):
		BadRequest(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrSenderNotAuthorized):
		Forbidden(c, GetErrorMessage(err))
	default:
		h.log.Error("inbound reply processing failed", zap.Error(err))
		InternalError(c, MsgInboundProcessFailed)
	}
}
