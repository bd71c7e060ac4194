package domain

import "time"

// FinancingRequest 表示买家提交的一条融资申请。
//
// 允许未注册的游客提交：此时 UserID 为空，Email 保存游客填写的联系邮箱。
// 会话的买家身份解析依赖这两个字段的回退顺序（先注册用户、后联系邮箱），
// 不能假设两者总是同时存在。
type FinancingRequest struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ListingID    string          `json:"listingId" gorm:"type:varchar(36);index"`
	UserID       *string         `json:"userId,omitempty" gorm:"type:varchar(36);index"`
	Email        string          `json:"email" gorm:"type:varchar(255);not null"`
	Phone        string          `json:"phone,omitempty" gorm:"type:varchar(32)"`
	PropertyType string          `json:"propertyType" gorm:"type:varchar(50)"`
	LoanAmount   int64           `json:"loanAmount"`
	Status       FinancingStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// FinancingStatus 标识融资申请的处理阶段。
type FinancingStatus string

const (
	FinancingStatusPending   FinancingStatus = "pending"   // 待贷款方认领
	FinancingStatusInContact FinancingStatus = "incontact" // 已建立会话
	FinancingStatusClosed    FinancingStatus = "closed"    // 已关闭
)
