// internal/storage/models/base.go
package models

import "time"

// BaseModel replaces gorm.Model so DeletedAt stays a plain nullable column.
type BaseModel struct {
	ID        uint       `gorm:"primarykey"`
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `gorm:"index"`
}
