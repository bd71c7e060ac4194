package domain

import "time"

// Conversation 表示买家与贷款方之间的一条会话。
//
// 不变式：每条会话恰好关联一个贷款方（LenderID）和一个买家侧身份
// （通过 FinancingRequestID 间接解析，可能是注册用户或游客联系邮箱），
// 两侧都必须能解析出邮箱地址。
//
// ID 使用自增整数而非 UUID：回信地址编码 conv_<id>_<hex> 要求会话标识
// 是紧凑的十进制数字段。
type Conversation struct {
	ID                 int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	FinancingRequestID string    `json:"financingRequestId" gorm:"type:varchar(36);not null;uniqueIndex:idx_conversations_request_lender"`
	LenderID           string    `json:"lenderId" gorm:"type:varchar(36);index;not null;uniqueIndex:idx_conversations_request_lender"`
	PropertyType       string    `json:"propertyType" gorm:"type:varchar(50)"` // 冗余自融资申请，用于通知文案
	LoanAmount         int64     `json:"loanAmount"`                           // 冗余自融资申请，用于通知文案
	LastMessageAt      time.Time `json:"lastMessageAt" gorm:"index"`
	LastMessagePreview string    `json:"lastMessagePreview" gorm:"type:varchar(120)"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
