package storage

import (
	"errors"
	"time"

	"homematch/backend/internal/domain"
)

var (
	// ErrUserNotFound 用户未找到错误
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists 邮箱已被注册错误
	ErrEmailExists = errors.New("email already exists")
	// ErrLenderNotFound 贷款方未找到错误
	ErrLenderNotFound = errors.New("lender not found")
	// ErrListingNotFound 房源未找到错误
	ErrListingNotFound = errors.New("listing not found")
	// ErrFinancingRequestNotFound 融资申请未找到错误
	ErrFinancingRequestNotFound = errors.New("financing request not found")
	// ErrConversationNotFound 会话未找到错误
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationExists 同一申请与贷款方的会话已存在
	ErrConversationExists = errors.New("conversation already exists")
	// ErrMessageNotFound 消息未找到错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrOTPNotFound 验证码不存在或已过期
	ErrOTPNotFound = errors.New("otp code not found")
)

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateLastLogin(userID string) error
}

// LenderRepository 定义贷款方数据存取操作。
type LenderRepository interface {
	SaveLender(lender *domain.Lender) error
	GetLender(id string) (*domain.Lender, error)
	GetLenderByEmail(email string) (*domain.Lender, error)
	ListActiveLenders() ([]domain.Lender, error)
}

// ListingRepository 定义房源数据存取操作。
type ListingRepository interface {
	SaveListing(listing *domain.Listing) error
	GetListing(id string) (*domain.Listing, error)
	ListListings() ([]domain.Listing, error)
}

// FinancingRequestRepository 定义融资申请数据存取操作。
type FinancingRequestRepository interface {
	SaveFinancingRequest(request *domain.FinancingRequest) error
	GetFinancingRequest(id string) (*domain.FinancingRequest, error)
	ListFinancingRequestsByEmail(email string) ([]domain.FinancingRequest, error)
	UpdateFinancingRequestStatus(id string, status domain.FinancingStatus) error
	// ClaimFinancingRequests 将游客时期以 email 提交的申请归属到注册用户，
	// 返回受影响的申请数量。
	ClaimFinancingRequests(email, userID string) (int, error)
}

// ConversationRepository 定义会话数据存取操作。
type ConversationRepository interface {
	// CreateConversation 保存会话并回填自增 ID。
	CreateConversation(conversation *domain.Conversation) error
	GetConversation(id int64) (*domain.Conversation, error)
	// FindConversation 按 (融资申请, 贷款方) 二元组查找既有会话。
	FindConversation(financingRequestID, lenderID string) (*domain.Conversation, error)
	ListConversationsByLender(lenderID string) ([]domain.Conversation, error)
	ListConversationsByRequestIDs(requestIDs []string) ([]domain.Conversation, error)
	// TouchConversation 更新会话的最近消息时间与摘要。
	TouchConversation(id int64, preview string, at time.Time) error
}

// MessageRepository 定义会话消息数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.ConversationMessage) error
	ListMessages(conversationID int64) ([]domain.ConversationMessage, error)
	CountUnread(conversationID int64, sentBy domain.SenderType) (int, error)
	// MarkMessagesRead 将会话中由 sentBy 一方发出的消息全部置为已读。
	MarkMessagesRead(conversationID int64, sentBy domain.SenderType) error
}

// OTPRecord 是一次邮箱验证码的缓存记录。
type OTPRecord struct {
	CodeHash string // bcrypt 哈希，绝不保存明文
	Attempts int64  // 已消耗的校验次数
}

// Cache 定义验证码、去重与限流所需的带 TTL 缓存操作。
// 生产环境由 Redis 实现；无 Redis 时由内存实现兜底。
type Cache interface {
	SaveOTPCode(email, codeHash string, ttl time.Duration) error
	GetOTPCode(email string) (*OTPRecord, error)
	IncrementOTPAttempts(email string) (int64, error)
	DeleteOTPCode(email string) error

	// MarkEmailSeen 记录邮件服务商的 Message-ID，返回是否首次出现。
	MarkEmailSeen(emailMessageID string, ttl time.Duration) (bool, error)

	IncrementRateLimit(key string, window time.Duration) (int64, error)

	Close() error
	Health() error
}

// Store 定义完整的存储接口。
type Store interface {
	UserRepository
	LenderRepository
	ListingRepository
	FinancingRequestRepository
	ConversationRepository
	MessageRepository

	// 工具方法
	Close() error
	Health() error
}
