package domain

import "time"

// SenderType 标识会话消息的发送方归属。
type SenderType string

const (
	SenderTypeBuyer   SenderType = "buyer"
	SenderTypeLender  SenderType = "lender"
	SenderTypeUnknown SenderType = "unknown" // 仅作为解析结果出现，不会被持久化
)

// ConversationMessage 表示会话内的一条消息。
//
// 创建后除已读状态外不再变更。EmailMessageID 保存邮件服务商的
// Message-ID，用于去重和邮件线程关联，可为空。
type ConversationMessage struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID int64      `json:"conversationId" gorm:"index;not null"`
	SenderType     SenderType `json:"senderType" gorm:"type:varchar(10);not null"`
	SenderID       string     `json:"senderId" gorm:"type:varchar(255)"`
	SenderEmail    string     `json:"senderEmail" gorm:"type:varchar(255)"`
	Text           string     `json:"text" gorm:"type:text"`
	HTML           string     `json:"html,omitempty" gorm:"type:text"`
	IsEmailReply   bool       `json:"isEmailReply" gorm:"default:false"` // 消息来自邮件回复（含 AMP 表单）
	EmailMessageID string     `json:"emailMessageId,omitempty" gorm:"type:varchar(255);index"`
	IsRead         bool       `json:"isRead" gorm:"default:false;index"`
	CreatedAt      time.Time  `json:"createdAt"`
}
