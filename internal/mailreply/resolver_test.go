package mailreply

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homematch/backend/internal/domain"
)

// stubDirectory 内存桩实现，按 ID 精确返回预置对象。
type stubDirectory struct {
	conversations map[int64]*domain.Conversation
	lenders       map[string]*domain.Lender
	users         map[string]*domain.User
	requests      map[string]*domain.FinancingRequest
}

var errStubNotFound = errors.New("not found")

func (s *stubDirectory) GetConversation(id int64) (*domain.Conversation, error) {
	if c, ok := s.conversations[id]; ok {
		return c, nil
	}
	return nil, errStubNotFound
}

func (s *stubDirectory) GetLender(id string) (*domain.Lender, error) {
	if l, ok := s.lenders[id]; ok {
		return l, nil
	}
	return nil, errStubNotFound
}

func (s *stubDirectory) GetUserByID(id string) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, errStubNotFound
}

func (s *stubDirectory) GetFinancingRequest(id string) (*domain.FinancingRequest, error) {
	if f, ok := s.requests[id]; ok {
		return f, nil
	}
	return nil, errStubNotFound
}

func newResolverFixture() *stubDirectory {
	userID := "user-1"
	return &stubDirectory{
		conversations: map[int64]*domain.Conversation{
			1: {ID: 1, FinancingRequestID: "fr-1", LenderID: "lender-1"},
			2: {ID: 2, FinancingRequestID: "fr-guest", LenderID: "lender-1"},
		},
		lenders: map[string]*domain.Lender{
			"lender-1": {ID: "lender-1", Email: "anna@bank.example", DisplayName: "Anna"},
		},
		users: map[string]*domain.User{
			"user-1": {ID: "user-1", Email: "buyer@mail.example", FirstName: "Bo", LastName: "Chen"},
		},
		requests: map[string]*domain.FinancingRequest{
			"fr-1":     {ID: "fr-1", UserID: &userID, Email: "buyer@mail.example"},
			"fr-guest": {ID: "fr-guest", UserID: nil, Email: "guest@mail.example"},
		},
	}
}

func TestResolve(t *testing.T) {
	dir := newResolverFixture()

	t.Run("贷款方邮箱命中第一层", func(t *testing.T) {
		res, err := Resolve(dir, 1, "anna@bank.example")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeLender, res.Type)
		assert.Equal(t, "lender-1", res.SenderID)
		assert.Equal(t, domain.SenderTypeBuyer, res.RecipientType)
		assert.Equal(t, "buyer@mail.example", res.RecipientEmail)
		assert.Equal(t, "Bo Chen", res.RecipientName)
	})

	t.Run("注册用户邮箱命中第二层", func(t *testing.T) {
		res, err := Resolve(dir, 1, "buyer@mail.example")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeBuyer, res.Type)
		assert.Equal(t, "user-1", res.SenderID)
		assert.Equal(t, domain.SenderTypeLender, res.RecipientType)
		assert.Equal(t, "anna@bank.example", res.RecipientEmail)
	})

	t.Run("游客联系邮箱命中第三层", func(t *testing.T) {
		res, err := Resolve(dir, 2, "guest@mail.example")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeBuyer, res.Type)
		assert.Equal(t, "guest@mail.example", res.SenderID)
		assert.Equal(t, domain.SenderTypeLender, res.RecipientType)
	})

	t.Run("邮箱比较大小写不敏感", func(t *testing.T) {
		res, err := Resolve(dir, 1, "ANNA@Bank.Example")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeLender, res.Type)
	})

	t.Run("无关地址判为 unknown", func(t *testing.T) {
		res, err := Resolve(dir, 1, "stranger@evil.example")
		require.NoError(t, err)
		assert.True(t, res.Unknown())
	})

	t.Run("带空格的地址不做归一化因而不匹配", func(t *testing.T) {
		res, err := Resolve(dir, 1, " anna@bank.example ")
		require.NoError(t, err)
		assert.True(t, res.Unknown())
	})

	t.Run("贷款方回信时游客会话通知对象回退到联系邮箱", func(t *testing.T) {
		res, err := Resolve(dir, 2, "anna@bank.example")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeLender, res.Type)
		assert.Equal(t, "guest@mail.example", res.RecipientEmail)
	})

	t.Run("会话不存在返回错误", func(t *testing.T) {
		_, err := Resolve(dir, 99, "anna@bank.example")
		assert.Error(t, err)
	})
}
