package domain

import "time"

// Listing 表示一条房源记录。
//
// 本服务只消费房源的冗余元数据（类型、标的价格）用于融资申请和通知文案，
// 房源搜索、筛选与图片上传不在本服务范围内。
type Listing struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title        string    `json:"title" gorm:"type:varchar(255);not null"`
	PropertyType string    `json:"propertyType" gorm:"type:varchar(50);index"`
	Address      string    `json:"address" gorm:"type:varchar(500)"`
	Price        int64     `json:"price"`
	IsActive     bool      `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
