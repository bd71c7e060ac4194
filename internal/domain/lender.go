package domain

import "time"

// Lender 表示入驻的贷款机构顾问。
//
// 贷款方不走 OTP 登录流程，由后台录入；Email 是会话归属判定的关键字段，
// 必须可解析为有效邮箱地址。
type Lender struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email       string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(150);not null"`
	Company     string    `json:"company,omitempty" gorm:"type:varchar(150)"`
	IsActive    bool      `json:"isActive" gorm:"default:true"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
