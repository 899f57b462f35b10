package warranty

import "time"

// Status 保修单状态枚举（持久化为字符串）。
type Status string

const (
	StatusPendingReview Status = "pending_review" // 待审核（普通入口）
	StatusProcessing    Status = "processing"     // 处理中（召回单直接从这里开始）
	StatusCompleted     Status = "completed"      // 已完成
	StatusRejected      Status = "rejected"       // 已驳回（仅能从待审核进入）
)

// Claim 保修单 GORM 模型。
// 付费字段（IsPaid/EstimatedRepairCost/WarrantyFee/FeeNote）只在 IsPaid 为真
// 且非召回来源时有值：召回产生的维修永不向客户收费。
type Claim struct {
	ID string `gorm:"primaryKey;size:36"`

	VehicleID       string `gorm:"index;size:36;not null"`
	InstalledPartID string `gorm:"index;size:36;not null"`
	Status          Status `gorm:"type:varchar(24);index;not null"`
	Description     string `gorm:"size:2048"`
	ServiceCenterID string `gorm:"index;size:36"`
	AssignedTechID  string `gorm:"index;size:36"`

	// 召回回链（仅召回自动创建的保修单有值）
	RecallCampaignID *string `gorm:"index;size:36"`
	RecallResponseID *string `gorm:"uniqueIndex;size:36"`

	// 付费保修（金额单位：最小货币单位）
	IsPaid              bool   `gorm:"not null;default:false"`
	EstimatedRepairCost int64  `gorm:"not null;default:0"`
	WarrantyFee         int64  `gorm:"not null;default:0"`
	FeeNote             string `gorm:"size:512"`

	RejectionReason string `gorm:"size:512"`

	ClaimDate      time.Time `gorm:"not null"`
	ResolutionDate *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// FromRecall 该保修单是否由召回响应自动生成。
func (c *Claim) FromRecall() bool {
	return c != nil && c.RecallResponseID != nil && *c.RecallResponseID != ""
}

// WorkLog 技师工时记录：只在保修单 processing 期间写入，不改变单据状态。
type WorkLog struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ClaimID      string    `gorm:"index;size:36;not null"`
	TechnicianID string    `gorm:"index;size:36;not null"`
	StartTime    time.Time `gorm:"not null"`
	EndTime      *time.Time
	Description  string    `gorm:"size:1024"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// ServiceHistory 维修历史：保修单完成时落一条，供车辆档案查询。
type ServiceHistory struct {
	ID          string    `gorm:"primaryKey;size:36"`
	VehicleID   string    `gorm:"index;size:36;not null"`
	ClaimID     string    `gorm:"index;size:36;not null"`
	ServiceDate time.Time `gorm:"not null"`
	Description string    `gorm:"size:1024"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}
