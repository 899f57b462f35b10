package recall

import "time"

// CampaignStatus 召回活动状态。
type CampaignStatus string

const (
	CampaignPendingAdminApproval   CampaignStatus = "pending_admin_approval"   // 待管理员审批
	CampaignWaitingCustomerConfirm CampaignStatus = "waiting_customer_confirm" // 已批准，等待车主确认
	CampaignRejectedByAdmin        CampaignStatus = "rejected_by_admin"        // 管理员否决（终态）
)

// ResponseStatus 单车召回响应状态。
type ResponseStatus string

const (
	ResponsePending    ResponseStatus = "pending"     // 待车主确认
	ResponseAccepted   ResponseStatus = "accepted"    // 车主已接受
	ResponseInProgress ResponseStatus = "in_progress" // 维修进行中
	ResponseCompleted  ResponseStatus = "completed"   // 维修完成（终态）
	ResponseDeclined   ResponseStatus = "declined"    // 车主拒绝（终态）
)

// Campaign 召回活动：针对某个目录件的批次召回。
type Campaign struct {
	ID     string         `gorm:"primaryKey;size:36"`
	PartID string         `gorm:"index;size:36;not null"`
	Status CampaignStatus `gorm:"type:varchar(32);index;not null"`
	Reason string         `gorm:"size:1024;not null"`

	CreatedBy  string `gorm:"index;size:36;not null"`
	ApprovedBy string `gorm:"size:36"`
	ApprovedAt *time.Time
	// 管理员审批/否决时的说明（否决时必填）
	AdminNote string `gorm:"size:512"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Response 单车召回响应。每个活动对每辆车至多一条（复合唯一索引兜底）。
type Response struct {
	ID              string         `gorm:"primaryKey;size:36"`
	CampaignID      string         `gorm:"uniqueIndex:uk_campaign_vehicle;size:36;not null"`
	VehicleID       string         `gorm:"uniqueIndex:uk_campaign_vehicle;size:36;not null"`
	InstalledPartID string         `gorm:"size:36;not null"`
	Status          ResponseStatus `gorm:"type:varchar(16);index;not null"`

	// 接受后生成的保修单回链
	ClaimID *string `gorm:"uniqueIndex;size:36"`
	// 车主确认时的备注
	CustomerNote string `gorm:"size:512"`

	ConfirmedAt *time.Time // 车主接受或拒绝的时刻
	CompletedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
