package domain

import "time"

// User 表示平台上的买家账户。
//
// 买家通过邮箱一次性验证码（OTP）登录，首次验证成功时自动建档，
// 因此没有密码字段；IsEmailVerified 在首次 OTP 验证通过后置为 true。
type User struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email           string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	FirstName       string     `json:"firstName" gorm:"type:varchar(100)"`
	LastName        string     `json:"lastName" gorm:"type:varchar(100)"`
	Phone           string     `json:"phone,omitempty" gorm:"type:varchar(32)"`
	IsActive        bool       `json:"isActive" gorm:"default:true"`
	IsEmailVerified bool       `json:"isEmailVerified" gorm:"default:false"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

// FullName 返回用于通知文案的显示名。
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
