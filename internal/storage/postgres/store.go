package postgres

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL 与 MySQL。
type Store struct {
	db *gorm.DB
}

// NewStore 根据数据库配置创建存储实例。
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
	return NewStoreWithDialector(dialector, cfg)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例。
func NewStoreWithDialector(dialector gorm.Dialector, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动迁移数据库表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Lender{},
		&domain.Listing{},
		&domain.FinancingRequest{},
		&domain.Conversation{},
		&domain.ConversationMessage{},
	)
}

// ========== User Repository ==========

// CreateUser 创建用户，邮箱唯一索引冲突时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	err := s.db.Create(user).Error
	if err != nil && isDuplicateKey(err) {
		return storage.ErrEmailExists
	}
	return err
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户（大小写不敏感）。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, notFound(err, storage.ErrUserNotFound)
	}
	return &user, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	result := s.db.Save(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin 更新用户最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	result := s.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ========== Lender Repository ==========

// SaveLender 保存贷款方。
func (s *Store) SaveLender(lender *domain.Lender) error {
	return s.db.Save(lender).Error
}

// GetLender 根据 ID 获取贷款方。
func (s *Store) GetLender(id string) (*domain.Lender, error) {
	var lender domain.Lender
	if err := s.db.Where("id = ?", id).First(&lender).Error; err != nil {
		return nil, notFound(err, storage.ErrLenderNotFound)
	}
	return &lender, nil
}

// GetLenderByEmail 根据邮箱获取贷款方（大小写不敏感）。
func (s *Store) GetLenderByEmail(email string) (*domain.Lender, error) {
	var lender domain.Lender
	if err := s.db.Where("LOWER(email) = LOWER(?)", email).First(&lender).Error; err != nil {
		return nil, notFound(err, storage.ErrLenderNotFound)
	}
	return &lender, nil
}

// ListActiveLenders 返回全部启用状态的贷款方。
func (s *Store) ListActiveLenders() ([]domain.Lender, error) {
	var lenders []domain.Lender
	err := s.db.Where("is_active = ?", true).Order("display_name ASC").Find(&lenders).Error
	return lenders, err
}

// ========== Listing Repository ==========

// SaveListing 保存房源。
func (s *Store) SaveListing(listing *domain.Listing) error {
	return s.db.Save(listing).Error
}

// GetListing 根据 ID 获取房源。
func (s *Store) GetListing(id string) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.db.Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, notFound(err, storage.ErrListingNotFound)
	}
	return &listing, nil
}

// ListListings 返回全部房源，按创建时间倒序。
func (s *Store) ListListings() ([]domain.Listing, error) {
	var listings []domain.Listing
	err := s.db.Order("created_at DESC").Find(&listings).Error
	return listings, err
}

// ========== FinancingRequest Repository ==========

// SaveFinancingRequest 保存融资申请。
func (s *Store) SaveFinancingRequest(request *domain.FinancingRequest) error {
	return s.db.Save(request).Error
}

// GetFinancingRequest 根据 ID 获取融资申请。
func (s *Store) GetFinancingRequest(id string) (*domain.FinancingRequest, error) {
	var request domain.FinancingRequest
	if err := s.db.Where("id = ?", id).First(&request).Error; err != nil {
		return nil, notFound(err, storage.ErrFinancingRequestNotFound)
	}
	return &request, nil
}

// ListFinancingRequestsByEmail 返回指定联系邮箱提交的全部申请。
func (s *Store) ListFinancingRequestsByEmail(email string) ([]domain.FinancingRequest, error) {
	var requests []domain.FinancingRequest
	err := s.db.Where("LOWER(email) = LOWER(?)", email).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// UpdateFinancingRequestStatus 更新申请状态。
func (s *Store) UpdateFinancingRequestStatus(id string, status domain.FinancingStatus) error {
	result := s.db.Model(&domain.FinancingRequest{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrFinancingRequestNotFound
	}
	return nil
}

// ClaimFinancingRequests 将游客申请归属到注册用户，返回受影响数量。
func (s *Store) ClaimFinancingRequests(email, userID string) (int, error) {
	result := s.db.Model(&domain.FinancingRequest{}).
		Where("LOWER(email) = LOWER(?) AND user_id IS NULL", email).
		Update("user_id", userID)
	return int(result.RowsAffected), result.Error
}

// ========== Conversation Repository ==========

// CreateConversation 保存会话并回填自增 ID。
func (s *Store) CreateConversation(conversation *domain.Conversation) error {
	err := s.db.Create(conversation).Error
	if err != nil && isDuplicateKey(err) {
		return storage.ErrConversationExists
	}
	return err
}

// GetConversation 根据 ID 获取会话。
func (s *Store) GetConversation(id int64) (*domain.Conversation, error) {
	var conversation domain.Conversation
	if err := s.db.Where("id = ?", id).First(&conversation).Error; err != nil {
		return nil, notFound(err, storage.ErrConversationNotFound)
	}
	return &conversation, nil
}

// FindConversation 按 (融资申请, 贷款方) 二元组查找既有会话。
func (s *Store) FindConversation(financingRequestID, lenderID string) (*domain.Conversation, error) {
	var conversation domain.Conversation
	err := s.db.Where("financing_request_id = ? AND lender_id = ?", financingRequestID, lenderID).
		First(&conversation).Error
	if err != nil {
		return nil, notFound(err, storage.ErrConversationNotFound)
	}
	return &conversation, nil
}

// ListConversationsByLender 返回贷款方的全部会话，按最近消息倒序。
func (s *Store) ListConversationsByLender(lenderID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := s.db.Where("lender_id = ?", lenderID).
		Order("last_message_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// ListConversationsByRequestIDs 返回若干融资申请关联的全部会话。
func (s *Store) ListConversationsByRequestIDs(requestIDs []string) ([]domain.Conversation, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}
	var conversations []domain.Conversation
	err := s.db.Where("financing_request_id IN ?", requestIDs).
		Order("last_message_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// TouchConversation 更新会话的最近消息时间与摘要。
func (s *Store) TouchConversation(id int64, preview string, at time.Time) error {
	result := s.db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_at":      at,
			"last_message_preview": preview,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrConversationNotFound
	}
	return nil
}

// ========== Message Repository ==========

// SaveMessage 保存会话消息。
func (s *Store) SaveMessage(message *domain.ConversationMessage) error {
	return s.db.Create(message).Error
}

// ListMessages 返回会话的全部消息，按创建时间升序。
func (s *Store) ListMessages(conversationID int64) ([]domain.ConversationMessage, error) {
	if _, err := s.GetConversation(conversationID); err != nil {
		return nil, err
	}
	var messages []domain.ConversationMessage
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// CountUnread 统计会话中由 sentBy 一方发出且未读的消息数量。
func (s *Store) CountUnread(conversationID int64, sentBy domain.SenderType) (int, error) {
	var count int64
	err := s.db.Model(&domain.ConversationMessage{}).
		Where("conversation_id = ? AND sender_type = ? AND is_read = ?", conversationID, sentBy, false).
		Count(&count).Error
	return int(count), err
}

// MarkMessagesRead 将会话中由 sentBy 一方发出的消息全部置为已读。
func (s *Store) MarkMessagesRead(conversationID int64, sentBy domain.SenderType) error {
	return s.db.Model(&domain.ConversationMessage{}).
		Where("conversation_id = ? AND sender_type = ?", conversationID, sentBy).
		Update("is_read", true).Error
}

// ========== 工具方法 ==========

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连通性。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// isDuplicateKey 识别两种方言的唯一约束冲突。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
