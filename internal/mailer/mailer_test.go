package mailer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
)

func TestBuildMIME(t *testing.T) {
	cfg := config.OutboundConfig{
		From:     "no-reply@homematch.example",
		FromName: "HomeMatch",
	}

	t.Run("包含文本与HTML两个部分", func(t *testing.T) {
		raw, err := buildMIME(cfg, message{
			to:      "buyer@mail.example",
			subject: "新消息",
			text:    "plain body",
			html:    "<p>html body</p>",
		})
		require.NoError(t, err)

		s := string(raw)
		assert.Contains(t, s, "To: buyer@mail.example")
		assert.Contains(t, s, "Content-Type: multipart/alternative")
		assert.Contains(t, s, "text/plain; charset=utf-8")
		assert.Contains(t, s, "text/html; charset=utf-8")
		assert.Contains(t, s, "plain body")
	})

	t.Run("AMP部分在HTML之前", func(t *testing.T) {
		raw, err := buildMIME(cfg, message{
			to:      "buyer@mail.example",
			subject: "新消息",
			text:    "plain body",
			html:    "<p>html body</p>",
			amp:     `<html amp4email><body>amp form</body></html>`,
		})
		require.NoError(t, err)

		s := string(raw)
		ampIdx := strings.Index(s, "text/x-amp-html; charset=utf-8")
		htmlIdx := strings.Index(s, "text/html; charset=utf-8")
		textIdx := strings.Index(s, "text/plain; charset=utf-8")
		require.True(t, ampIdx > 0 && htmlIdx > 0 && textIdx > 0)
		assert.Less(t, textIdx, ampIdx)
		assert.Less(t, ampIdx, htmlIdx)
	})

	t.Run("设置回信地址头", func(t *testing.T) {
		raw, err := buildMIME(cfg, message{
			to:      "lender@bank.example",
			replyTo: "conv_42_ab12cd34ef567890@inbound.homematch.example",
			subject: "s",
			text:    "t",
		})
		require.NoError(t, err)
		assert.Contains(t, string(raw), "Reply-To: conv_42_ab12cd34ef567890@inbound.homematch.example")
	})

	t.Run("非ASCII主题被MIME编码", func(t *testing.T) {
		raw, err := buildMIME(cfg, message{to: "a@b.c", subject: "您有新的回复", text: "t"})
		require.NoError(t, err)
		assert.Contains(t, string(raw), "=?utf-8?q?")
	})

	t.Run("显示名拼入发件头", func(t *testing.T) {
		raw, err := buildMIME(cfg, message{to: "a@b.c", toName: "Anna", subject: "s", text: "t"})
		require.NoError(t, err)
		assert.Contains(t, string(raw), "Anna <a@b.c>")
		assert.Contains(t, string(raw), "<no-reply@homematch.example>")
	})
}

func TestMailer_Disabled(t *testing.T) {
	m := New(config.OutboundConfig{}, zap.NewNop())

	t.Run("未配置中继时发送静默丢弃", func(t *testing.T) {
		assert.NoError(t, m.SendLoginCode("a@b.c", "123456", 10*time.Minute))
		assert.NoError(t, m.SendReplyNotification(ReplyNotification{To: "a@b.c", Subject: "s", Text: "t"}))
	})
}

func TestLoginCodeContent(t *testing.T) {
	raw, err := buildMIME(config.OutboundConfig{From: "n@h.e"}, message{
		to:      "a@b.c",
		subject: "HomeMatch 登录验证码",
		text:    "您的 HomeMatch 登录验证码是：123456",
	})
	require.NoError(t, err)
	// quoted-printable 编码后的正文应仍包含验证码数字
	assert.True(t, strings.Contains(string(raw), "123456"))
}
