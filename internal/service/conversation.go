package service

import (
	"errors"
	"fmt"
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
	// ErrEmptyMessage 消息正文为空
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrMessageTooLong 消息超出长度上限
	ErrMessageTooLong = errors.New("message text too long")
	// ErrNotParticipant 操作者不是会话参与方
	ErrNotParticipant = errors.New("not a conversation participant")
)

// ConversationService 封装买家与贷款方之间的会话业务。
type ConversationService struct {
	store    storage.Store
	notifier *Notifier
	chat     config.ChatConfig
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewConversationService 创建会话服务。
func NewConversationService(
	store storage.Store,
	notifier *Notifier,
	chat config.ChatConfig,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *ConversationService {
	return &ConversationService{
		store:    store,
		notifier: notifier,
		chat:     chat,
		metrics:  metrics,
		log:      log,
	}
}

// Overview 会话列表项，附带未读计数。
type Overview struct {
	domain.Conversation
	UnreadCount int `json:"unreadCount"`
}

// Start 在融资申请与贷款方之间开启会话。
//
// 同一 (申请, 贷款方) 二元组幂等：已有会话时直接返回。
// 开启会话的同时把申请状态推进到"联系中"。
func (s *ConversationService) Start(financingRequestID, lenderID string) (*domain.Conversation, error) {
	if existing, err := s.store.FindConversation(financingRequestID, lenderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrConversationNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	request, err := s.store.GetFinancingRequest(financingRequestID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetLender(lenderID); err != nil {
		return nil, err
	}

	now := time.Now()
	conversation := &domain.Conversation{
		FinancingRequestID: financingRequestID,
		LenderID:           lenderID,
		PropertyType:       request.PropertyType,
		LoanAmount:         request.LoanAmount,
		LastMessageAt:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateConversation(conversation); err != nil {
		// 并发开启时另一请求可能抢先创建
		if errors.Is(err, storage.ErrConversationExists) {
			return s.store.FindConversation(financingRequestID, lenderID)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	if err := s.store.UpdateFinancingRequestStatus(financingRequestID, domain.FinancingStatusInContact); err != nil {
		s.log.Warn("failed to advance financing request status",
			zap.String("request_id", financingRequestID),
			zap.Error(err),
		)
	}

	s.metrics.ConversationsStarted.Inc()
	s.log.Info("conversation started",
		zap.Int64("conversation_id", conversation.ID),
		zap.String("request_id", financingRequestID),
		zap.String("lender_id", lenderID),
	)
	return conversation, nil
}

// Get 获取会话。
func (s *ConversationService) Get(id int64) (*domain.Conversation, error) {
	return s.store.GetConversation(id)
}

// ListForUser 返回用户可见的会话列表（未读数为贷款方发来的未读消息）。
func (s *ConversationService) ListForUser(user *domain.User) ([]Overview, error) {
	requests, err := s.store.ListFinancingRequestsByEmail(user.Email)
	if err != nil {
		return nil, fmt.Errorf("list financing requests: %w", err)
	}
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ID)
	}

	conversations, err := s.store.ListConversationsByRequestIDs(ids)
	if err != nil {
		return nil, err
	}
	return s.withUnread(conversations, domain.SenderTypeLender)
}

// ListForLender 返回贷款方的会话列表（未读数为买家发来的未读消息）。
func (s *ConversationService) ListForLender(lenderID string) ([]Overview, error) {
	conversations, err := s.store.ListConversationsByLender(lenderID)
	if err != nil {
		return nil, err
	}
	return s.withUnread(conversations, domain.SenderTypeBuyer)
}

func (s *ConversationService) withUnread(conversations []domain.Conversation, sentBy domain.SenderType) ([]Overview, error) {
	result := make([]Overview, 0, len(conversations))
	for _, c := range conversations {
		unread, err := s.store.CountUnread(c.ID, sentBy)
		if err != nil {
			return nil, err
		}
		result = append(result, Overview{Conversation: c, UnreadCount: unread})
	}
	return result, nil
}

// MessagesForUser 返回会话消息；操作者必须是会话买家一方。
func (s *ConversationService) MessagesForUser(user *domain.User, conversationID int64) ([]domain.ConversationMessage, error) {
	if _, err := s.resolveParticipant(conversationID, user.Email); err != nil {
		return nil, err
	}
	return s.store.ListMessages(conversationID)
}

// MarkReadForUser 将贷款方发来的消息置为已读。
func (s *ConversationService) MarkReadForUser(user *domain.User, conversationID int64) error {
	if _, err := s.resolveParticipant(conversationID, user.Email); err != nil {
		return err
	}
	return s.store.MarkMessagesRead(conversationID, domain.SenderTypeLender)
}

// SendFromUser 以登录用户身份在会话中发送站内消息。
//
// 长度上限在任何存储调用之前检查；通知失败只记日志，
// 消息本身已经写入。
func (s *ConversationService) SendFromUser(user *domain.User, conversationID int64, text string) (*domain.ConversationMessage, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.chat.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	res, err := s.resolveParticipant(conversationID, user.Email)
	if err != nil {
		return nil, err
	}

	conversation, err := s.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}

	message := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderType:     res.Type,
		SenderID:       res.SenderID,
		SenderEmail:    user.Email,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := s.store.SaveMessage(message); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	if err := s.store.TouchConversation(conversationID, Preview(text, s.chat.PreviewLength), message.CreatedAt); err != nil {
		s.log.Warn("failed to touch conversation",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	s.metrics.MessagesPersisted.WithLabelValues(monitoring.ChannelApp).Inc()

	if err := s.notifier.NotifyNewMessage(conversation, res, message); err != nil {
		s.log.Error("notification failed after persist",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	return message, nil
}

// CheckAccess 校验邮箱是否为会话参与方，供 WebSocket 订阅等场景使用。
func (s *ConversationService) CheckAccess(conversationID int64, email string) error {
	_, err := s.resolveParticipant(conversationID, email)
	return err
}

// resolveParticipant 确认邮箱属于会话参与方并返回解析结果。
func (s *ConversationService) resolveParticipant(conversationID int64, email string) (*mailreply.Resolution, error) {
	res, err := mailreply.Resolve(s.store, conversationID, email)
	if err != nil {
		return nil, err
	}
	if res.Unknown() {
		return nil, ErrNotParticipant
	}
	return res, nil
}

// Preview 生成用于会话列表的消息摘要，按字符数截断。
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
