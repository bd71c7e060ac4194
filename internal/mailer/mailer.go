package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
)

// Sender 是外发邮件的抽象，便于在测试中替换真实 SMTP 中继。
type Sender interface {
	SendLoginCode(toEmail, code string, ttl time.Duration) error
	SendReplyNotification(n ReplyNotification) error
}

// ReplyNotification 描述一封"会话有新消息"的通知邮件。
type ReplyNotification struct {
	To      string // 收件地址
	ToName  string // 收件人显示名
	ReplyTo string // 回信地址，直接回复该邮件即回到会话
	Subject string
	Text    string
	HTML    string
	AMP     string // AMP for Email 变体，内嵌行内回复表单，可为空
}

// Mailer 通过配置的 SMTP 中继发送邮件。
// 未配置中继主机时所有发送调用记录警告后丢弃。
type Mailer struct {
	cfg config.OutboundConfig
	log *zap.Logger
}

// New 创建邮件发送器。
func New(cfg config.OutboundConfig, log *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// SendLoginCode 发送登录验证码邮件。
func (m *Mailer) SendLoginCode(toEmail, code string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	text := fmt.Sprintf(
		"您的 HomeMatch 登录验证码是：%s\n\n验证码 %d 分钟内有效，请勿转发给他人。\n如果这不是您本人的操作，请忽略本邮件。",
		code, minutes,
	)
	html := fmt.Sprintf(
		`<p>您的 HomeMatch 登录验证码是：</p><p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p><p>验证码 %d 分钟内有效，请勿转发给他人。</p>`,
		code, minutes,
	)
	return m.send(message{
		to:      toEmail,
		subject: "HomeMatch 登录验证码",
		text:    text,
		html:    html,
	})
}

// SendReplyNotification 发送会话新消息通知邮件。
func (m *Mailer) SendReplyNotification(n ReplyNotification) error {
	return m.send(message{
		to:      n.To,
		toName:  n.ToName,
		replyTo: n.ReplyTo,
		subject: n.Subject,
		text:    n.Text,
		html:    n.HTML,
		amp:     n.AMP,
	})
}

type message struct {
	to      string
	toName  string
	replyTo string
	subject string
	text    string
	html    string
	amp     string
}

func (m *Mailer) send(msg message) error {
	if m.cfg.Host == "" {
		m.log.Warn("outbound smtp not configured, dropping message",
			zap.String("to", msg.to),
			zap.String("subject", msg.subject),
		)
		return nil
	}

	raw, err := buildMIME(m.cfg, msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	if err := gosmtp.SendMail(addr, auth, m.cfg.From, []string{msg.to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.to, err)
	}

	m.log.Debug("mail sent",
		zap.String("to", msg.to),
		zap.String("subject", msg.subject),
	)
	return nil
}

// buildMIME 构造 multipart/alternative 邮件，正文使用 quoted-printable。
func buildMIME(cfg config.OutboundConfig, msg message) ([]byte, error) {
	var buf bytes.Buffer
	body := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + formatAddress(cfg.FromName, cfg.From),
		"To: " + formatAddress(msg.toName, msg.to),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}
	if msg.replyTo != "" {
		headers = append(headers, "Reply-To: "+msg.replyTo)
	}
	headers = append(headers, `Content-Type: multipart/alternative; boundary="`+body.Boundary()+`"`)

	buf.WriteString(strings.Join(headers, "\r\n"))
	buf.WriteString("\r\n\r\n")

	// 部分顺序固定：text/plain → text/x-amp-html → text/html
	// （客户端优先渲染最后一个可用部分，AMP 部分必须在 HTML 之前）
	if msg.text != "" {
		if err := writePart(body, "text/plain; charset=utf-8", msg.text); err != nil {
			return nil, err
		}
	}
	if msg.amp != "" {
		if err := writePart(body, "text/x-amp-html; charset=utf-8", msg.amp); err != nil {
			return nil, err
		}
	}
	if msg.html != "" {
		if err := writePart(body, "text/html; charset=utf-8", msg.html); err != nil {
			return nil, err
		}
	}

	if err := body.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType, content string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), email)
}
