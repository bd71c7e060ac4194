package service

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/storage"
)

var (
	// ErrAddressUnrecognized 收件地址不是有效的会话回信地址
	ErrAddressUnrecognized = errors.New("reply address not recognized")
	// ErrSenderNotAuthorized 发件人不是会话参与方
	ErrSenderNotAuthorized = errors.New("sender not authorized for this conversation")
)

// 去重记录保留时间：邮件服务商的重投窗口远小于此值。
const seenTTL = 7 * 24 * time.Hour

// InboundEmail 是一封到达的会话回信（webhook 或 SMTP 入口）。
type InboundEmail struct {
	Recipient string // 收件地址或完整 To 头，内含会话回信地址
	From      string // 发件地址或完整 From 头
	Subject   string
	Text      string // 纯文本正文，可为空
	HTML      string // HTML 正文，可为空
	MessageID string // 服务商 Message-ID，用于重投去重，可为空
}

// InlineReply 是通知邮件内嵌表单提交的回复。
type InlineReply struct {
	ConversationID int64  // 表单携带的会话ID
	SenderEmail    string // 取自请求头 X-Sender-Email
	Text           string
}

// InboundService 处理进入系统的邮件回复。
//
// 处理管线固定为：解析回信地址 → 去重 → 发件人鉴权 → 正文清洗 →
// 持久化 → 通知另一方。任何一步失败都不会产生半写入状态：
// 持久化之前的失败直接拒绝，持久化之后的通知失败只记日志。
type InboundService struct {
	store    storage.Store
	cache    storage.Cache
	codec    *mailreply.Codec
	notifier *Notifier
	chat     config.ChatConfig
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewInboundService 创建入站回复处理服务。
func NewInboundService(
	store storage.Store,
	cache storage.Cache,
	codec *mailreply.Codec,
	notifier *Notifier,
	chat config.ChatConfig,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *InboundService {
	return &InboundService{
		store:    store,
		cache:    cache,
		codec:    codec,
		notifier: notifier,
		chat:     chat,
		metrics:  metrics,
		log:      log,
	}
}

// HandleEmail 处理一封入站回信。
//
// 重复投递（相同 Message-ID）按成功处理，返回 (nil, nil)。
// 地址无法解析返回 ErrAddressUnrecognized；发件人不是会话
// 参与方返回 ErrSenderNotAuthorized。
func (s *InboundService) HandleEmail(in InboundEmail) (*domain.ConversationMessage, error) {
	conversationID, ok := s.codec.Decode(in.Recipient)
	if !ok {
		s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeBadAddress).Inc()
		s.log.Warn("inbound email with unrecognized recipient",
			zap.String("recipient", in.Recipient),
		)
		return nil, ErrAddressUnrecognized
	}

	if in.MessageID != "" {
		first, err := s.cache.MarkEmailSeen(in.MessageID, seenTTL)
		if err != nil {
			// 去重缓存不可用时放行，宁可重复不可丢信
			s.log.Warn("dedup cache unavailable", zap.Error(err))
		} else if !first {
			s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeDuplicate).Inc()
			s.log.Info("duplicate inbound email ignored",
				zap.Int64("conversation_id", conversationID),
				zap.String("message_id", in.MessageID),
			)
			return nil, nil
		}
	}

	senderEmail := extractEmail(in.From)
	res, err := mailreply.Resolve(s.store, conversationID, senderEmail)
	if err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) {
			s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeBadAddress).Inc()
			return nil, ErrAddressUnrecognized
		}
		s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeError).Inc()
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if res.Unknown() {
		s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeUnauthorized).Inc()
		s.log.Warn("inbound email from non-participant",
			zap.Int64("conversation_id", conversationID),
			zap.String("sender", senderEmail),
		)
		return nil, ErrSenderNotAuthorized
	}

	cleanText, cleanHTML := mailreply.CleanEmailContent(in.Text, in.HTML)
	body := mailreply.MessageBody(cleanText, cleanHTML)

	message := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderType:     res.Type,
		SenderID:       res.SenderID,
		SenderEmail:    senderEmail,
		Text:           body,
		HTML:           cleanHTML,
		IsEmailReply:   true,
		EmailMessageID: in.MessageID,
		CreatedAt:      time.Now(),
	}
	if err := s.persistAndNotify(message, res); err != nil {
		return nil, err
	}
	s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomePersisted).Inc()
	s.metrics.MessagesPersisted.WithLabelValues(monitoring.ChannelEmail).Inc()
	return message, nil
}

// HandleInlineReply 处理通知邮件内嵌表单提交的回复。
//
// 长度上限在任何存储调用之前检查。
func (s *InboundService) HandleInlineReply(in InlineReply) (*domain.ConversationMessage, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.chat.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	senderEmail := extractEmail(in.SenderEmail)
	res, err := mailreply.Resolve(s.store, in.ConversationID, senderEmail)
	if err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) {
			return nil, ErrAddressUnrecognized
		}
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if res.Unknown() {
		return nil, ErrSenderNotAuthorized
	}

	message := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderType:     res.Type,
		SenderID:       res.SenderID,
		SenderEmail:    senderEmail,
		Text:           text,
		IsEmailReply:   true,
		CreatedAt:      time.Now(),
	}
	if err := s.persistAndNotify(message, res); err != nil {
		return nil, err
	}
	s.metrics.MessagesPersisted.WithLabelValues(monitoring.ChannelForm).Inc()
	return message, nil
}

func (s *InboundService) persistAndNotify(message *domain.ConversationMessage, res *mailreply.Resolution) error {
	if err := s.store.SaveMessage(message); err != nil {
		s.metrics.InboundEmailsTotal.WithLabelValues(monitoring.InboundOutcomeError).Inc()
		return fmt.Errorf("save message: %w", err)
	}
	if err := s.store.TouchConversation(message.ConversationID, Preview(message.Text, s.chat.PreviewLength), message.CreatedAt); err != nil {
		s.log.Warn("failed to touch conversation",
			zap.Int64("conversation_id", message.ConversationID),
			zap.Error(err),
		)
	}

	conversation, err := s.store.GetConversation(message.ConversationID)
	if err != nil {
		s.log.Warn("failed to load conversation for notification",
			zap.Int64("conversation_id", message.ConversationID),
			zap.Error(err),
		)
		return nil
	}

	// 消息已落库，通知失败不再回传错误
	if err := s.notifier.NotifyNewMessage(conversation, res, message); err != nil {
		s.log.Error("notification failed after persist",
			zap.Int64("conversation_id", message.ConversationID),
			zap.Error(err),
		)
	}
	return nil
}

// extractEmail 从完整的 From/To 头中提取裸地址，小写返回。
func extractEmail(header string) string {
	header = strings.TrimSpace(header)
	if addr, err := mail.ParseAddress(header); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.Trim(header, "<>"))
}
