package recall

import (
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
)

// AllowCampaignTransition 召回活动状态机（有向图配置）。
// 活动没有“关闭”态：批准后一直保持 waiting_customer_confirm，
// 各车的进度由 Response 单独跟踪。
var AllowCampaignTransition = map[CampaignStatus][]CampaignStatus{
	CampaignPendingAdminApproval: {CampaignWaitingCustomerConfirm, CampaignRejectedByAdmin},
	CampaignWaitingCustomerConfirm: {},
	CampaignRejectedByAdmin:        {},
}

// AllowResponseTransition 单车响应状态机。
// declined 只能从 pending 进入；接受后只能一路走到 completed。
var AllowResponseTransition = map[ResponseStatus][]ResponseStatus{
	ResponsePending:    {ResponseAccepted, ResponseDeclined},
	ResponseAccepted:   {ResponseInProgress},
	ResponseInProgress: {ResponseCompleted},
	ResponseCompleted:  {},
	ResponseDeclined:   {},
}

// CanCampaignTransition 判断活动 from -> to 是否允许。同状态不放行。
func CanCampaignTransition(from, to CampaignStatus) bool {
	allowed, ok := AllowCampaignTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CanResponseTransition 判断响应 from -> to 是否允许。同状态不放行。
func CanResponseTransition(from, to ResponseStatus) bool {
	allowed, ok := AllowResponseTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyCampaignTransition 对召回活动应用状态变更并维护时间字段。
func ApplyCampaignTransition(c *Campaign, to CampaignStatus, now time.Time) error {
	if c == nil {
		return errs.Validation("campaign is nil")
	}
	from := c.Status
	if !CanCampaignTransition(from, to) {
		return errs.InvalidTransition("recall campaign", string(from), string(to))
	}

	c.Status = to

	if to == CampaignWaitingCustomerConfirm && c.ApprovedAt == nil {
		t := now
		c.ApprovedAt = &t
	}
	return nil
}

// ApplyResponseTransition 对单车响应应用状态变更并维护时间字段。
func ApplyResponseTransition(r *Response, to ResponseStatus, now time.Time) error {
	if r == nil {
		return errs.Validation("recall response is nil")
	}
	from := r.Status
	if !CanResponseTransition(from, to) {
		return errs.InvalidTransition("recall response", string(from), string(to))
	}

	r.Status = to

	switch to {
	case ResponseAccepted, ResponseDeclined:
		if r.ConfirmedAt == nil {
			t := now
			r.ConfirmedAt = &t
		}
	case ResponseCompleted:
		if r.CompletedAt == nil {
			t := now
			r.CompletedAt = &t
		}
	}
	return nil
}
