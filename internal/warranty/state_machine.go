package warranty

import (
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
)

// AllowTransition 定义保修单状态机的允许流转关系（有向图配置）。
// rejected 只能从 pending_review 进入；召回单跳过 pending_review 直接以
// processing 落库（见 NewRecallClaim），不属于这里的流转。
var AllowTransition = map[Status][]Status{
	StatusPendingReview: {StatusProcessing, StatusRejected},
	StatusProcessing:    {StatusCompleted},
	// 终态：不允许再流转
	StatusCompleted: {},
	StatusRejected:  {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
// 同状态不放行：重复操作必须显式报错，不允许静默 no-op。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
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

// ApplyTransition 对保修单应用状态变更，并维护关键时间字段。
func ApplyTransition(c *Claim, to Status, now time.Time) error {
	if c == nil {
		return errs.Validation("claim is nil")
	}
	from := c.Status
	if !CanTransition(from, to) {
		return errs.InvalidTransition("claim", string(from), string(to))
	}

	c.Status = to

	if to == StatusCompleted && c.ResolutionDate == nil {
		t := now
		c.ResolutionDate = &t
	}
	return nil
}

// IsFinal 是否为终态。
func IsFinal(s Status) bool {
	allowed, ok := AllowTransition[s]
	return ok && len(allowed) == 0
}
