package smtp

import (
	"errors"
	"io"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage"
	"homematch/backend/internal/storage/filesystem"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只收不发的 SMTP 端点，专门接收发往会话回信地址
// （conv_<id>_<后缀>@inbound.<域名>）的邮件。RCPT 阶段就完成
// 地址校验：形状不符或会话不存在的收件人一律 550 拒绝，
// 服务器不会被当成中继使用。
type Backend struct {
	codec         *mailreply.Codec
	conversations storage.ConversationRepository
	inbound       *service.InboundService
	archive       *filesystem.Archive // 可为 nil，原文归档是可选项
	maxSize       int64
	log           *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(
	codec *mailreply.Codec,
	conversations storage.ConversationRepository,
	inbound *service.InboundService,
	archive *filesystem.Archive,
	maxSize int64,
	log *zap.Logger,
) *Backend {
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Backend{
		codec:         codec,
		conversations: conversations,
		inbound:       inbound,
		archive:       archive,
		maxSize:       maxSize,
		log:           log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受能解码出会话 ID 且该会话确实存在的回信地址。
// 发件人是否为会话参与方在 DATA 阶段才校验，这里不查——
// RCPT 阶段发件人头还不可信。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	conversationID, ok := s.backend.codec.Decode(to)
	if !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}

	if _, err := s.backend.conversations.GetConversation(conversationID); err != nil {
		if errors.Is(err, storage.ErrConversationNotFound) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient mailbox not found",
			}
		}
		s.backend.log.Error("conversation lookup failed during rcpt",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary lookup failure",
		}
	}

	s.recipients = append(s.recipients, to)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxSize))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		s.backend.log.Warn("failed to parse inbound email", zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "message could not be parsed",
		}
	}

	from := parsed.From
	if from == "" {
		from = s.fromAddress
	}

	for _, rcpt := range s.recipients {
		message, err := s.backend.inbound.HandleEmail(service.InboundEmail{
			Recipient: rcpt,
			From:      from,
			Subject:   parsed.Subject,
			Text:      parsed.Text,
			HTML:      parsed.HTML,
			MessageID: parsed.MessageID,
		})
		if err != nil {
			return smtpError(err)
		}
		if message != nil {
			s.archiveRaw(message.ConversationID, message.ID, rawBytes)
		}
	}

	return nil
}

// archiveRaw 落盘归档原始邮件，失败只记日志。
func (s *session) archiveRaw(conversationID int64, messageID string, raw []byte) {
	if s.backend.archive == nil {
		return
	}
	if _, err := s.backend.archive.SaveRaw(conversationID, messageID, raw); err != nil {
		s.backend.log.Warn("failed to archive raw inbound email",
			zap.Int64("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// smtpError 将业务错误映射为 SMTP 状态码。
func smtpError(err error) error {
	switch {
	case errors.Is(err, service.ErrAddressUnrecognized):
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	case errors.Is(err, service.ErrSenderNotAuthorized):
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "sender not permitted for this recipient",
		}
	default:
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary processing failure",
		}
	}
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}
