package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"homematch/backend/internal/domain"
	"homematch/backend/internal/storage"
)

// Store 使用内存保存全部业务数据，主要用于开发验证与测试。
type Store struct {
	mu sync.RWMutex

	users       map[string]*domain.User // userID -> user
	usersByMail map[string]string       // 小写 email -> userID

	lenders       map[string]*domain.Lender
	lendersByMail map[string]string

	listings map[string]*domain.Listing

	requests       map[string]*domain.FinancingRequest
	requestsByMail map[string][]string // 小写 email -> requestIDs

	conversations   map[int64]*domain.Conversation
	conversationSeq int64
	byPair          map[string]int64 // financingRequestID + "|" + lenderID -> conversationID

	messages map[int64][]*domain.ConversationMessage // conversationID -> 按时间追加
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:          make(map[string]*domain.User),
		usersByMail:    make(map[string]string),
		lenders:        make(map[string]*domain.Lender),
		lendersByMail:  make(map[string]string),
		listings:       make(map[string]*domain.Listing),
		requests:       make(map[string]*domain.FinancingRequest),
		requestsByMail: make(map[string][]string),
		conversations:  make(map[int64]*domain.Conversation),
		byPair:         make(map[string]int64),
		messages:       make(map[int64][]*domain.ConversationMessage),
	}
}

// CreateUser 创建用户，邮箱重复时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.usersByMail[key]; exists {
		return storage.ErrEmailExists
	}
	clone := *user
	s.users[user.ID] = &clone
	s.usersByMail[key] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByEmail 根据邮箱获取用户（大小写不敏感）。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if !strings.EqualFold(old.Email, user.Email) {
		delete(s.usersByMail, strings.ToLower(old.Email))
		s.usersByMail[strings.ToLower(user.Email)] = user.ID
	}
	user.UpdatedAt = time.Now()
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

// UpdateLastLogin 更新用户最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now()
	user.LastLoginAt = &now
	return nil
}

// SaveLender 保存贷款方。
func (s *Store) SaveLender(lender *domain.Lender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *lender
	s.lenders[lender.ID] = &clone
	s.lendersByMail[strings.ToLower(lender.Email)] = lender.ID
	return nil
}

// GetLender 根据 ID 获取贷款方。
func (s *Store) GetLender(id string) (*domain.Lender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lender, ok := s.lenders[id]
	if !ok {
		return nil, storage.ErrLenderNotFound
	}
	clone := *lender
	return &clone, nil
}

// GetLenderByEmail 根据邮箱获取贷款方（大小写不敏感）。
func (s *Store) GetLenderByEmail(email string) (*domain.Lender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lendersByMail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrLenderNotFound
	}
	clone := *s.lenders[id]
	return &clone, nil
}

// ListActiveLenders 返回全部启用状态的贷款方。
func (s *Store) ListActiveLenders() ([]domain.Lender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Lender, 0, len(s.lenders))
	for _, l := range s.lenders {
		if l.IsActive {
			result = append(result, *l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

// SaveListing 保存房源。
func (s *Store) SaveListing(listing *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *listing
	s.listings[listing.ID] = &clone
	return nil
}

// GetListing 根据 ID 获取房源。
func (s *Store) GetListing(id string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[id]
	if !ok {
		return nil, storage.ErrListingNotFound
	}
	clone := *listing
	return &clone, nil
}

// ListListings 返回全部房源快照。
func (s *Store) ListListings() ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		result = append(result, *l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// SaveFinancingRequest 保存融资申请。
func (s *Store) SaveFinancingRequest(request *domain.FinancingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(request.Email)
	if _, exists := s.requests[request.ID]; !exists {
		s.requestsByMail[key] = append(s.requestsByMail[key], request.ID)
	}
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

// GetFinancingRequest 根据 ID 获取融资申请。
func (s *Store) GetFinancingRequest(id string) (*domain.FinancingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrFinancingRequestNotFound
	}
	clone := *request
	return &clone, nil
}

// ListFinancingRequestsByEmail 返回指定联系邮箱提交的全部申请。
func (s *Store) ListFinancingRequestsByEmail(email string) ([]domain.FinancingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.requestsByMail[strings.ToLower(email)]
	result := make([]domain.FinancingRequest, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.requests[id]; ok {
			result = append(result, *r)
		}
	}
	return result, nil
}

// UpdateFinancingRequestStatus 更新申请状态。
func (s *Store) UpdateFinancingRequestStatus(id string, status domain.FinancingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return storage.ErrFinancingRequestNotFound
	}
	request.Status = status
	request.UpdatedAt = time.Now()
	return nil
}

// ClaimFinancingRequests 将游客申请归属到注册用户。
func (s *Store) ClaimFinancingRequests(email, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := 0
	for _, id := range s.requestsByMail[strings.ToLower(email)] {
		request, ok := s.requests[id]
		if !ok || request.UserID != nil {
			continue
		}
		uid := userID
		request.UserID = &uid
		request.UpdatedAt = time.Now()
		claimed++
	}
	return claimed, nil
}

// CreateConversation 保存会话并回填自增 ID；
// 同一 (融资申请, 贷款方) 二元组只允许一个会话。
func (s *Store) CreateConversation(conversation *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := conversation.FinancingRequestID + "|" + conversation.LenderID
	if _, exists := s.byPair[pair]; exists {
		return storage.ErrConversationExists
	}

	s.conversationSeq++
	conversation.ID = s.conversationSeq
	clone := *conversation
	s.conversations[conversation.ID] = &clone
	s.byPair[pair] = conversation.ID
	return nil
}

// GetConversation 根据 ID 获取会话。
func (s *Store) GetConversation(id int64) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	clone := *conversation
	return &clone, nil
}

// FindConversation 按 (融资申请, 贷款方) 二元组查找既有会话。
func (s *Store) FindConversation(financingRequestID, lenderID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[financingRequestID+"|"+lenderID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	clone := *s.conversations[id]
	return &clone, nil
}

// ListConversationsByLender 返回贷款方的全部会话，按最近消息倒序。
func (s *Store) ListConversationsByLender(lenderID string) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		if c.LenderID == lenderID {
			result = append(result, *c)
		}
	}
	sortByLastMessage(result)
	return result, nil
}

// ListConversationsByRequestIDs 返回若干融资申请关联的全部会话，按最近消息倒序。
func (s *Store) ListConversationsByRequestIDs(requestIDs []string) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		wanted[id] = struct{}{}
	}

	result := make([]domain.Conversation, 0)
	for _, c := range s.conversations {
		if _, ok := wanted[c.FinancingRequestID]; ok {
			result = append(result, *c)
		}
	}
	sortByLastMessage(result)
	return result, nil
}

// TouchConversation 更新会话的最近消息时间与摘要。
func (s *Store) TouchConversation(id int64, preview string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return storage.ErrConversationNotFound
	}
	conversation.LastMessageAt = at
	conversation.LastMessagePreview = preview
	conversation.UpdatedAt = time.Now()
	return nil
}

// SaveMessage 保存会话消息。
func (s *Store) SaveMessage(message *domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return storage.ErrConversationNotFound
	}
	clone := *message
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], &clone)
	return nil
}

// ListMessages 返回会话的全部消息，按创建时间升序。
func (s *Store) ListMessages(conversationID int64) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, storage.ErrConversationNotFound
	}
	msgs := s.messages[conversationID]
	result := make([]domain.ConversationMessage, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CountUnread 统计会话中由 sentBy 一方发出且未读的消息数量。
func (s *Store) CountUnread(conversationID int64, sentBy domain.SenderType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderType == sentBy && !m.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkMessagesRead 将会话中由 sentBy 一方发出的消息全部置为已读。
func (s *Store) MarkMessagesRead(conversationID int64, sentBy domain.SenderType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return storage.ErrConversationNotFound
	}
	for _, m := range s.messages[conversationID] {
		if m.SenderType == sentBy {
			m.IsRead = true
		}
	}
	return nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 健康检查（内存实现恒为健康）。
func (s *Store) Health() error { return nil }

func sortByLastMessage(list []domain.Conversation) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastMessageAt.After(list[j].LastMessageAt)
	})
}
