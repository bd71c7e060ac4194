package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/storage/memory"
)

type conversationFixture struct {
	store   *memory.Store
	mail    *fakeMailer
	svc     *ConversationService
	lender  *domain.Lender
	request *domain.FinancingRequest
	user    *domain.User
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()

	store := memory.NewStore()
	codec := mailreply.NewCodec("homematch.example")
	mail := &fakeMailer{}
	log := zap.NewNop()

	notifier := NewNotifier(codec, "https://homematch.example", mail, nil, testMetrics, log)
	svc := NewConversationService(store, notifier, config.ChatConfig{
		MaxMessageLength: 5000,
		PreviewLength:    120,
	}, testMetrics, log)

	lender := &domain.Lender{ID: "lender-1", Email: "anna@bank.example", DisplayName: "Anna", IsActive: true}
	require.NoError(t, store.SaveLender(lender))

	user := &domain.User{ID: "user-1", Email: "buyer@mail.example", IsActive: true}
	require.NoError(t, store.CreateUser(user))

	userID := user.ID
	request := &domain.FinancingRequest{
		ID:           "fr-1",
		UserID:       &userID,
		Email:        "buyer@mail.example",
		PropertyType: "house",
		LoanAmount:   400000,
		Status:       domain.FinancingStatusPending,
	}
	require.NoError(t, store.SaveFinancingRequest(request))

	return &conversationFixture{store: store, mail: mail, svc: svc, lender: lender, request: request, user: user}
}

func TestConversationService_Start(t *testing.T) {
	t.Run("开启会话并推进申请状态", func(t *testing.T) {
		f := newConversationFixture(t)

		conv, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)
		assert.NotZero(t, conv.ID)
		assert.Equal(t, "house", conv.PropertyType)
		assert.Equal(t, int64(400000), conv.LoanAmount)

		request, err := f.store.GetFinancingRequest(f.request.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.FinancingStatusInContact, request.Status)
	})

	t.Run("重复开启返回既有会话", func(t *testing.T) {
		f := newConversationFixture(t)

		first, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)
		second, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("申请或贷款方不存在时失败", func(t *testing.T) {
		f := newConversationFixture(t)

		_, err := f.svc.Start("missing", f.lender.ID)
		assert.Error(t, err)

		_, err = f.svc.Start(f.request.ID, "missing")
		assert.Error(t, err)
	})
}

func TestConversationService_SendFromUser(t *testing.T) {
	t.Run("站内发送落库更新摘要并通知贷款方", func(t *testing.T) {
		f := newConversationFixture(t)
		conv, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)

		msg, err := f.svc.SendFromUser(f.user, conv.ID, "您好，想咨询利率")
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeBuyer, msg.SenderType)
		assert.False(t, msg.IsEmailReply)

		got, err := f.store.GetConversation(conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "您好，想咨询利率", got.LastMessagePreview)

		require.Len(t, f.mail.notifications, 1)
		assert.Equal(t, "anna@bank.example", f.mail.notifications[0].To)
	})

	t.Run("超长消息在存储调用前被拒绝", func(t *testing.T) {
		f := newConversationFixture(t)
		conv, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)

		_, err = f.svc.SendFromUser(f.user, conv.ID, strings.Repeat("字", 5001))
		assert.ErrorIs(t, err, ErrMessageTooLong)

		msgs, err := f.store.ListMessages(conv.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("空消息被拒绝", func(t *testing.T) {
		f := newConversationFixture(t)
		conv, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)

		_, err = f.svc.SendFromUser(f.user, conv.ID, "")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("非参与方用户被拒绝", func(t *testing.T) {
		f := newConversationFixture(t)
		conv, err := f.svc.Start(f.request.ID, f.lender.ID)
		require.NoError(t, err)

		outsider := &domain.User{ID: "user-2", Email: "other@mail.example"}
		_, err = f.svc.SendFromUser(outsider, conv.ID, "hi")
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestConversationService_Lists(t *testing.T) {
	f := newConversationFixture(t)
	conv, err := f.svc.Start(f.request.ID, f.lender.ID)
	require.NoError(t, err)

	// 贷款方发来一条未读消息
	require.NoError(t, f.store.SaveMessage(&domain.ConversationMessage{
		ID:             "m-1",
		ConversationID: conv.ID,
		SenderType:     domain.SenderTypeLender,
		Text:           "您好",
	}))

	t.Run("用户会话列表带未读数", func(t *testing.T) {
		list, err := f.svc.ListForUser(f.user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, conv.ID, list[0].ID)
		assert.Equal(t, 1, list[0].UnreadCount)
	})

	t.Run("贷款方会话列表", func(t *testing.T) {
		list, err := f.svc.ListForLender(f.lender.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 0, list[0].UnreadCount)
	})

	t.Run("标记已读后未读数归零", func(t *testing.T) {
		require.NoError(t, f.svc.MarkReadForUser(f.user, conv.ID))
		list, err := f.svc.ListForUser(f.user)
		require.NoError(t, err)
		assert.Equal(t, 0, list[0].UnreadCount)
	})

	t.Run("非参与方读取消息被拒绝", func(t *testing.T) {
		outsider := &domain.User{ID: "user-2", Email: "other@mail.example"}
		_, err := f.svc.MessagesForUser(outsider, conv.ID)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestPreview(t *testing.T) {
	t.Run("短文本原样返回", func(t *testing.T) {
		assert.Equal(t, "hello", Preview("hello", 120))
	})

	t.Run("超长文本按字符截断并加省略号", func(t *testing.T) {
		got := Preview(strings.Repeat("字", 200), 120)
		assert.Equal(t, 120, len([]rune(got)))
		assert.True(t, strings.HasSuffix(got, "…"))
	})
}

func TestFinancingService_Submit(t *testing.T) {
	store := memory.NewStore()
	svc := NewFinancingService(store, store, zap.NewNop())

	require.NoError(t, store.SaveListing(&domain.Listing{
		ID:           "l-1",
		Title:        "市中心两居室",
		PropertyType: "apartment",
		Price:        300000,
	}))

	t.Run("游客提交申请", func(t *testing.T) {
		request, err := svc.Submit(SubmitInput{
			ListingID:  "l-1",
			Email:      "Guest@Mail.Example",
			LoanAmount: 250000,
		})
		require.NoError(t, err)
		assert.Nil(t, request.UserID)
		assert.Equal(t, "guest@mail.example", request.Email)
		// 房源上的类型覆盖表单
		assert.Equal(t, "apartment", request.PropertyType)
		assert.Equal(t, domain.FinancingStatusPending, request.Status)
	})

	t.Run("非法邮箱被拒绝", func(t *testing.T) {
		_, err := svc.Submit(SubmitInput{Email: "bad", LoanAmount: 1000})
		assert.ErrorIs(t, err, ErrInvalidContact)
	})

	t.Run("非正贷款金额被拒绝", func(t *testing.T) {
		_, err := svc.Submit(SubmitInput{Email: "a@b.example", LoanAmount: 0})
		assert.ErrorIs(t, err, ErrInvalidLoanAmount)
	})

	t.Run("房源不存在时失败", func(t *testing.T) {
		_, err := svc.Submit(SubmitInput{ListingID: "missing", Email: "a@b.example", LoanAmount: 1})
		assert.Error(t, err)
	})
}
