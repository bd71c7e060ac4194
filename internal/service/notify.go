package service

import (
	"fmt"
	"html"

	"go.uber.org/zap"

	"homematch/backend/internal/domain"
	"homematch/backend/internal/mailer"
	"homematch/backend/internal/mailreply"
	"homematch/backend/internal/monitoring"
)

// Pusher 向在线客户端推送会话事件（WebSocket）。
type Pusher interface {
	PushNewMessage(conversationID int64, message *domain.ConversationMessage)
}

// Notifier 把会话新消息通知给另一方。
//
// 邮件通知的 Reply-To 每次都用编解码器生成全新回信地址，
// 收件人直接回复邮件即可回到会话。通知属于尽力而为：
// 调用方在消息已持久化后吞掉这里返回的错误。
type Notifier struct {
	codec     *mailreply.Codec
	publicURL string // 行内回复表单的提交入口所在的站点地址
	mail      mailer.Sender
	push      Pusher // 可为 nil
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewNotifier 创建通知分发器。
func NewNotifier(
	codec *mailreply.Codec,
	publicURL string,
	mail mailer.Sender,
	push Pusher,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Notifier {
	return &Notifier{
		codec:     codec,
		publicURL: publicURL,
		mail:      mail,
		push:      push,
		metrics:   metrics,
		log:       log,
	}
}

// SetPusher 在构造后注入站内推送通道。
// Hub 的订阅鉴权依赖会话服务，会话服务又持有通知器，由此打破循环依赖。
func (n *Notifier) SetPusher(p Pusher) {
	n.push = p
}

// NotifyNewMessage 通知会话另一方有新消息。
//
// WebSocket 推送无条件执行；邮件发送失败时计数并返回错误，
// 由调用方决定记录方式（不回滚已持久化的消息）。
func (n *Notifier) NotifyNewMessage(
	conv *domain.Conversation,
	res *mailreply.Resolution,
	msg *domain.ConversationMessage,
) error {
	if n.push != nil {
		n.push.PushNewMessage(conv.ID, msg)
	}

	if res.RecipientEmail == "" {
		n.log.Warn("no recipient email for notification",
			zap.Int64("conversation_id", conv.ID),
		)
		return nil
	}

	replyTo := n.codec.Encode(conv.ID)
	subject := fmt.Sprintf("%s 回复了您的融资会话", res.SenderName)

	senderName := html.EscapeString(res.SenderName)
	body := html.EscapeString(msg.Text)
	propertyType := html.EscapeString(conv.PropertyType)

	text := fmt.Sprintf(
		"%s 在您的融资会话中发来新消息：\n\n%s\n\n贷款类型：%s\n贷款金额：%d 元\n\n直接回复本邮件即可继续会话。",
		res.SenderName, msg.Text, conv.PropertyType, conv.LoanAmount,
	)
	htmlBody := fmt.Sprintf(
		`<p><strong>%s</strong> 在您的融资会话中发来新消息：</p><blockquote>%s</blockquote><p>贷款类型：%s<br>贷款金额：%d 元</p><p>直接回复本邮件即可继续会话。</p>`,
		senderName, body, propertyType, conv.LoanAmount,
	)
	amp := n.buildAMP(conv, senderName, body, propertyType)

	err := n.mail.SendReplyNotification(mailer.ReplyNotification{
		To:      res.RecipientEmail,
		ToName:  res.RecipientName,
		ReplyTo: replyTo,
		Subject: subject,
		Text:    text,
		HTML:    htmlBody,
		AMP:     amp,
	})
	if err != nil {
		n.metrics.NotificationsFailed.Inc()
		return fmt.Errorf("send notification for conversation %d: %w", conv.ID, err)
	}

	n.metrics.NotificationsSent.Inc()
	n.log.Info("notification sent",
		zap.Int64("conversation_id", conv.ID),
		zap.String("recipient_type", string(res.RecipientType)),
	)
	return nil
}

// buildAMP 生成带行内回复表单的 AMP for Email 变体。
// 支持 AMP 的客户端可以不离开邮件直接回复会话。
func (n *Notifier) buildAMP(conv *domain.Conversation, senderName, body, propertyType string) string {
	if n.publicURL == "" {
		return ""
	}
	return fmt.Sprintf(`<!doctype html>
<html ⚡4email data-css-strict>
<head>
<meta charset="utf-8">
<script async src="https://cdn.ampproject.org/v0.js"></script>
<script async custom-element="amp-form" src="https://cdn.ampproject.org/v0/amp-form-0.1.js"></script>
<style amp4email-boilerplate>body{visibility:hidden}</style>
</head>
<body>
<p><strong>%s</strong> 在您的融资会话中发来新消息：</p>
<blockquote>%s</blockquote>
<p>贷款类型：%s｜贷款金额：%d 元</p>
<form method="post" action-xhr="%s/v1/inbound/inline-reply">
  <input type="hidden" name="conversation_id" value="%d">
  <textarea name="message" rows="4" maxlength="5000" placeholder="输入回复内容"></textarea>
  <input type="submit" value="发送回复">
  <div submit-success><template type="amp-mustache"><p>回复已发送。</p></template></div>
  <div submit-error><template type="amp-mustache"><p>发送失败，请稍后重试。</p></template></div>
</form>
</body>
</html>`,
		senderName, body, propertyType, conv.LoanAmount, n.publicURL, conv.ID,
	)
}
