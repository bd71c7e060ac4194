package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmail(t *testing.T) {
	t.Run("纯文本邮件", func(t *testing.T) {
		raw := []byte("From: buyer@example.com\r\n" +
			"To: conv_7_deadbeefdeadbeef@inbound.homematch.example\r\n" +
			"Subject: Re: =?utf-8?B?6J6N6LWE5Lya6K+d?=\r\n" +
			"Message-ID: <abc-123@mail.example.com>\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			"可以安排下周看房。\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)
		assert.Equal(t, "Re: 融资会话", parsed.Subject)
		assert.Equal(t, "buyer@example.com", parsed.From)
		assert.Equal(t, "abc-123@mail.example.com", parsed.MessageID)
		assert.Contains(t, parsed.Text, "可以安排下周看房")
		assert.Empty(t, parsed.HTML)
	})

	t.Run("multipart邮件提取文本与HTML", func(t *testing.T) {
		raw := []byte("From: lender@bank.example\r\n" +
			"To: conv_7_deadbeefdeadbeef@inbound.homematch.example\r\n" +
			"Subject: Re: your request\r\n" +
			"Content-Type: multipart/alternative; boundary=SEP\r\n" +
			"\r\n" +
			"--SEP\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			"Rates start at 4.1%.\r\n" +
			"--SEP\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"\r\n" +
			"<p>Rates start at <b>4.1%</b>.</p>\r\n" +
			"--SEP--\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)
		assert.Contains(t, parsed.Text, "Rates start at 4.1%")
		assert.Contains(t, parsed.HTML, "<b>4.1%</b>")
	})

	t.Run("quoted-printable正文解码", func(t *testing.T) {
		raw := []byte("From: buyer@example.com\r\n" +
			"To: conv_7_deadbeefdeadbeef@inbound.homematch.example\r\n" +
			"Subject: Re: request\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"Content-Transfer-Encoding: quoted-printable\r\n" +
			"\r\n" +
			"caf=C3=A9 meeting works\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)
		assert.Contains(t, parsed.Text, "café meeting works")
	})

	t.Run("附件被丢弃", func(t *testing.T) {
		raw := []byte("From: buyer@example.com\r\n" +
			"To: conv_7_deadbeefdeadbeef@inbound.homematch.example\r\n" +
			"Subject: docs\r\n" +
			"Content-Type: multipart/mixed; boundary=SEP\r\n" +
			"\r\n" +
			"--SEP\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"\r\n" +
			"attached my pay stubs\r\n" +
			"--SEP\r\n" +
			"Content-Type: application/pdf\r\n" +
			"Content-Disposition: attachment; filename=\"stubs.pdf\"\r\n" +
			"Content-Transfer-Encoding: base64\r\n" +
			"\r\n" +
			"JVBERi0=\r\n" +
			"--SEP--\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)
		assert.Contains(t, parsed.Text, "attached my pay stubs")
		assert.Empty(t, parsed.HTML)
	})

	t.Run("无Content-Type当作纯文本", func(t *testing.T) {
		raw := []byte("From: buyer@example.com\r\n" +
			"To: conv_7_deadbeefdeadbeef@inbound.homematch.example\r\n" +
			"Subject: hi\r\n" +
			"\r\n" +
			"plain body\r\n")

		parsed, err := ParseEmail(raw)
		require.NoError(t, err)
		assert.Contains(t, parsed.Text, "plain body")
	})
}

func TestConnectionLimiter(t *testing.T) {
	t.Run("超过并发上限拒绝", func(t *testing.T) {
		limiter := NewConnectionLimiter(2, 100)

		assert.True(t, limiter.Acquire())
		assert.True(t, limiter.Acquire())
		assert.False(t, limiter.Acquire())

		limiter.Release()
		assert.True(t, limiter.Acquire())
		assert.Equal(t, 2, limiter.Current())
	})

	t.Run("速率限制耗尽令牌后拒绝", func(t *testing.T) {
		limiter := NewConnectionLimiter(100, 1)

		assert.True(t, limiter.Acquire())
		assert.False(t, limiter.Acquire())
	})
}
