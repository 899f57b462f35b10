package vehicle

import (
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型。
// 车辆由独立的 CRUD 流程维护，对保修/召回核心而言是只读输入。
type Vehicle struct {
	ID                string    `gorm:"primaryKey;size:36"`
	VIN               string    `gorm:"uniqueIndex;size:64;not null"` // 全局唯一
	Name              string    `gorm:"size:64"`
	Model             string    `gorm:"size:64"`
	OwnerID           string    `gorm:"index;size:36;not null"` // 车主（users.id）
	Mileage           int       `gorm:"not null;default:0"`     // 当前里程（km）
	WarrantyStartDate time.Time `gorm:"not null"`
	WarrantyEndDate   time.Time `gorm:"not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// Part 零部件目录条目（按类别召回的对象，如“某批次电池包”）。
type Part struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Name         string    `gorm:"size:128;not null"`
	Category     string    `gorm:"index;size:64"`
	Manufacturer string    `gorm:"size:128"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// InstalledPart 装车件：目录件 × 车辆的安装记录。
// 约束：保修到期日必须晚于安装日（创建时校验）。
type InstalledPart struct {
	ID                     string    `gorm:"primaryKey;size:36"`
	PartID                 string    `gorm:"index;size:36;not null"`
	VehicleID              string    `gorm:"index;size:36;not null"`
	SerialNumber           string    `gorm:"size:64"`
	InstallationDate       time.Time `gorm:"not null"`
	WarrantyExpirationDate time.Time `gorm:"not null"`
	CreatedAt              time.Time `gorm:"autoCreateTime"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}
