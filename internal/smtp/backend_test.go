package smtp

import (
	"strings"
	"testing"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/mailer"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage/memory"
)

// 指标注册在默认 registry 上，整个测试包共用一个实例。
var testMetrics = monitoring.NewMetrics()

type backendFixture struct {
	store   *memory.Store
	codec   *mailreply.Codec
	backend *Backend
	conv    *domain.Conversation
}

func newBackendFixture(t *testing.T) *backendFixture {
	t.Helper()

	store := memory.NewStore()
	cache := memory.NewCache()
	codec := mailreply.NewCodec("homematch.example")
	log := zap.NewNop()

	// 未配置中继的 mailer 静默丢弃外发，测试里足够
	mail := mailer.New(config.OutboundConfig{}, log)
	notifier := service.NewNotifier(codec, "", mail, nil, testMetrics, log)
	chat := config.ChatConfig{MaxMessageLength: 5000, PreviewLength: 120}
	inbound := service.NewInboundService(store, cache, codec, notifier, chat, testMetrics, log)

	lender := &domain.Lender{ID: "lender-1", Email: "anna@bank.example", DisplayName: "Anna", IsActive: true}
	require.NoError(t, store.SaveLender(lender))

	request := &domain.FinancingRequest{
		ID:           "fr-1",
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

	return &backendFixture{
		store:   store,
		codec:   codec,
		backend: NewBackend(codec, store, inbound, nil, 0, log),
		conv:    conv,
	}
}

func smtpCode(t *testing.T, err error) (int, gosmtp.EnhancedCode) {
	t.Helper()
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	return smtpErr.Code, smtpErr.EnhancedCode
}

func TestSession_Rcpt(t *testing.T) {
	t.Run("有效回信地址被接受", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}

		require.NoError(t, s.Rcpt(f.codec.Encode(f.conv.ID), nil))
		assert.Len(t, s.recipients, 1)
	})

	t.Run("非回信地址按拒绝中继处理", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}

		err := s.Rcpt("someone@elsewhere.example", nil)
		code, enhanced := smtpCode(t, err)
		assert.Equal(t, 550, code)
		assert.Equal(t, gosmtp.EnhancedCode{5, 7, 1}, enhanced)
		assert.Empty(t, s.recipients)
	})

	t.Run("会话不存在返回无此邮箱", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}

		err := s.Rcpt(f.codec.Encode(99999), nil)
		code, enhanced := smtpCode(t, err)
		assert.Equal(t, 550, code)
		assert.Equal(t, gosmtp.EnhancedCode{5, 1, 1}, enhanced)
	})
}

func TestSession_Data(t *testing.T) {
	raw := func(from, body string) string {
		return "From: " + from + "\r\n" +
			"Subject: Re: =?utf-8?B?6J6N6LWE55Sz6K+3?=\r\n" +
			"Message-ID: <msg-1@bank.example>\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			body + "\r\n"
	}

	t.Run("贷款方来信落库", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}
		require.NoError(t, s.Mail("anna@bank.example", nil))
		require.NoError(t, s.Rcpt(f.codec.Encode(f.conv.ID), nil))

		require.NoError(t, s.Data(strings.NewReader(raw("Anna <anna@bank.example>", "Sounds good."))))

		messages, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "Sounds good.", messages[0].Text)
		assert.Equal(t, domain.SenderTypeLender, messages[0].SenderType)
		assert.True(t, messages[0].IsEmailReply)
	})

	t.Run("缺少From头时回退到信封发件人", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}
		require.NoError(t, s.Mail("anna@bank.example", nil))
		require.NoError(t, s.Rcpt(f.codec.Encode(f.conv.ID), nil))

		noFrom := "Subject: Re: test\r\n\r\nenvelope only\r\n"
		require.NoError(t, s.Data(strings.NewReader(noFrom)))

		messages, err := f.store.ListMessages(f.conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
	})

	t.Run("非参与方发件人被拒绝且不落库", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}
		require.NoError(t, s.Mail("mallory@evil.example", nil))
		require.NoError(t, s.Rcpt(f.codec.Encode(f.conv.ID), nil))

		err := s.Data(strings.NewReader(raw("mallory@evil.example", "let me in")))
		code, enhanced := smtpCode(t, err)
		assert.Equal(t, 550, code)
		assert.Equal(t, gosmtp.EnhancedCode{5, 7, 1}, enhanced)

		messages, listErr := f.store.ListMessages(f.conv.ID)
		require.NoError(t, listErr)
		assert.Empty(t, messages)
	})

	t.Run("Reset清空会话状态", func(t *testing.T) {
		f := newBackendFixture(t)
		s := &session{backend: f.backend}
		require.NoError(t, s.Mail("anna@bank.example", nil))
		require.NoError(t, s.Rcpt(f.codec.Encode(f.conv.ID), nil))

		s.Reset()
		assert.Empty(t, s.fromAddress)
		assert.Empty(t, s.recipients)
	})
}
