package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/mailer"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/storage/memory"
)

// 指标注册在默认 registry 上，整个测试包共用一个实例。
var testMetrics = monitoring.NewMetrics()

// fakeMailer 捕获外发通知，可模拟发送失败。
type fakeMailer struct {
	notifications []mailer.ReplyNotification
	fail          bool
}

func (f *fakeMailer) SendLoginCode(string, string, time.Duration) error { return nil }

func (f *fakeMailer) SendReplyNotification(n mailer.ReplyNotification) error {
	if f.fail {
		return errors.New("relay down")
	}
	f.notifications = append(f.notifications, n)
	return nil
}

type inboundFixture struct {
	store   *memory.Store
	cache   *memory.Cache
	codec   *mailreply.Codec
	mail    *fakeMailer
	inbound *InboundService
	conv    *domain.Conversation
	lender  *domain.Lender
	request *domain.FinancingRequest
	user    *domain.User
}

func newInboundFixture(t *testing.T) *inboundFixture {
	t.Helper()

	store := memory.NewStore()
	cache := memory.NewCache()
	codec := mailreply.NewCodec("homematch.example")
	mail := &fakeMailer{}
	log := zap.NewNop()

	notifier := NewNotifier(codec, "https://homematch.example", mail, nil, testMetrics, log)
	chat := config.ChatConfig{MaxMessageLength: 5000, PreviewLength: 120}
	inbound := NewInboundService(store, cache, codec, notifier, chat, testMetrics, log)

	lender := &domain.Lender{ID: "lender-1", Email: "anna@bank.example", DisplayName: "Anna", IsActive: true}
	require.NoError(t, store.SaveLender(lender))

	user := &domain.User{ID: "user-1", Email: "buyer@mail.example", FirstName: "Bo", LastName: "Chen", IsActive: true}
	require.NoError(t, store.CreateUser(user))

	userID := user.ID
	request := &domain.FinancingRequest{
		ID:           "fr-1",
		UserID:       &userID,
		Email:        "buyer@mail.example",
		PropertyType: "apartment",
		LoanAmount:   250000,
		Status:       domain.FinancingStatusPending,
	}
	require.NoError(t, store.SaveFinancingRequest(request))

	conv := &domain.Conversation{
		FinancingRequestID: request.ID,
		LenderID:           lender.ID,
		PropertyType:       request.PropertyType,
		LoanAmount:         request.LoanAmount,
	}
	require.NoError(t, store.CreateConversation(conv))

	return &inboundFixture{
		store:   store,
		cache:   cache,
		codec:   codec,
		mail:    mail,
		inbound: inbound,
		conv:    conv,
		lender:  lender,
		request: request,
		user:    user,
	}
}

func TestInboundService_HandleEmail(t *testing.T) {
	t.Run("贷款方回信全链路落库并通知买家", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "Anna <anna@bank.example>",
			Subject:   "Re: 您的融资申请",
			Text:      "可以约个电话。\nOn Jan 1 Bo wrote:\n> 您好",
			MessageID: "<m1@provider>",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, domain.SenderTypeLender, msg.SenderType)
		assert.Equal(t, "可以约个电话。", msg.Text)
		assert.True(t, msg.IsEmailReply)

		// 消息已持久化
		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)

		// 会话摘要已更新
		conv, err := f.store.GetConversation(f.conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "可以约个电话。", conv.LastMessagePreview)

		// 买家收到通知，Reply-To 是新的回信地址
		require.Len(t, f.mail.notifications, 1)
		n := f.mail.notifications[0]
		assert.Equal(t, "buyer@mail.example", n.To)
		decoded, ok := f.codec.Decode(n.ReplyTo)
		require.True(t, ok)
		assert.Equal(t, f.conv.ID, decoded)
		assert.Contains(t, n.Text, "apartment")
		assert.Contains(t, n.Text, "250000")
	})

	t.Run("通知失败时消息仍然落库且不报错", func(t *testing.T) {
		f := newInboundFixture(t)
		f.mail.fail = true

		msg, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "anna@bank.example",
			Text:      "正文",
		})
		require.NoError(t, err)
		require.NotNil(t, msg)

		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("无法解析的收件地址被拒绝", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: "support@homematch.example",
			From:      "anna@bank.example",
			Text:      "hi",
		})
		assert.ErrorIs(t, err, ErrAddressUnrecognized)

		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("会话不存在按无效地址处理", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: "conv_999_ab12cd34ef567890@inbound.homematch.example",
			From:      "anna@bank.example",
			Text:      "hi",
		})
		assert.ErrorIs(t, err, ErrAddressUnrecognized)
	})

	t.Run("非参与方发件人被拒绝且不落库", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "stranger@evil.example",
			Text:      "let me in",
		})
		assert.ErrorIs(t, err, ErrSenderNotAuthorized)

		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
		assert.Empty(t, f.mail.notifications)
	})

	t.Run("相同MessageID的重投只处理一次", func(t *testing.T) {
		f := newInboundFixture(t)

		in := InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "anna@bank.example",
			Text:      "first delivery",
			MessageID: "<dup@provider>",
		}
		msg, err := f.inbound.HandleEmail(in)
		require.NoError(t, err)
		require.NotNil(t, msg)

		again, err := f.inbound.HandleEmail(in)
		require.NoError(t, err)
		assert.Nil(t, again)

		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("买家注册用户回信通知贷款方", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "Bo Chen <BUYER@mail.example>",
			Text:      "我想了解利率",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SenderTypeBuyer, msg.SenderType)
		assert.Equal(t, "user-1", msg.SenderID)

		require.Len(t, f.mail.notifications, 1)
		assert.Equal(t, "anna@bank.example", f.mail.notifications[0].To)
	})

	t.Run("只有HTML的回信降级为文本", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "anna@bank.example",
			HTML:      `<p>Hello<br>World</p><blockquote>old</blockquote>`,
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello\nWorld", msg.Text)
	})

	t.Run("正文全为引用时使用占位文案", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleEmail(InboundEmail{
			Recipient: f.codec.Encode(f.conv.ID),
			From:      "anna@bank.example",
			Text:      "> 引用一\n> 引用二",
		})
		require.NoError(t, err)
		assert.Equal(t, mailreply.FallbackBody, msg.Text)
	})
}

func TestInboundService_HandleInlineReply(t *testing.T) {
	t.Run("表单回复落库并通知", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleInlineReply(InlineReply{
			ConversationID: f.conv.ID,
			SenderEmail:    "anna@bank.example",
			Text:           "  表单里的回复  ",
		})
		require.NoError(t, err)
		assert.Equal(t, "表单里的回复", msg.Text)
		assert.True(t, msg.IsEmailReply)
		assert.Len(t, f.mail.notifications, 1)
	})

	t.Run("超长回复在任何存储调用前被拒绝", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleInlineReply(InlineReply{
			ConversationID: f.conv.ID,
			SenderEmail:    "anna@bank.example",
			Text:           strings.Repeat("字", 5001),
		})
		assert.ErrorIs(t, err, ErrMessageTooLong)

		stored, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("恰好达到上限的回复被接受", func(t *testing.T) {
		f := newInboundFixture(t)

		msg, err := f.inbound.HandleInlineReply(InlineReply{
			ConversationID: f.conv.ID,
			SenderEmail:    "anna@bank.example",
			Text:           strings.Repeat("字", 5000),
		})
		require.NoError(t, err)
		require.NotNil(t, msg)
	})

	t.Run("空回复被拒绝", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleInlineReply(InlineReply{
			ConversationID: f.conv.ID,
			SenderEmail:    "anna@bank.example",
			Text:           "   ",
		})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("非参与方表单回复被拒绝", func(t *testing.T) {
		f := newInboundFixture(t)

		_, err := f.inbound.HandleInlineReply(InlineReply{
			ConversationID: f.conv.ID,
			SenderEmail:    "stranger@evil.example",
			Text:           "hi",
		})
		assert.ErrorIs(t, err, ErrSenderNotAuthorized)
	})
}

func TestExtractEmail(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"裸地址", "anna@bank.example", "anna@bank.example"},
		{"带显示名", `"Anna B" <Anna@Bank.Example>`, "anna@bank.example"},
		{"尖括号包裹", "<anna@bank.example>", "anna@bank.example"},
		{"带空白", "  anna@bank.example  ", "anna@bank.example"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractEmail(tc.input))
		})
	}
}
