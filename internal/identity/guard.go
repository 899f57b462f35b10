package identity

import (
	"strings"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
)

// Actor 已认证的操作者身份。本包只信任 ID 与角色，不做认证。
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// IsElevated 是否持有不受所有权限制的提权角色。
func (a Actor) IsElevated() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleEVMStaff) ||
		a.HasRole(RoleSCStaff) || a.HasRole(RoleSCTechnician)
}

// Guard 是纯粹的授权判定器：给定操作者与目标资源的归属，判断能否操作。
// 无状态，构造一次全局注入。
// 注意：鉴权失败必须与“资源不存在”区分开，调用方先查资源、后判权限。
type Guard struct{}

func NewGuard() *Guard { return &Guard{} }

// CanActOnOwned 车辆级资源（车辆/保修单/召回响应）的归属判定：
// 操作者是车主本人，或持有提权角色。
func (g *Guard) CanActOnOwned(actor Actor, ownerID string) bool {
	if actor.ID != "" && actor.ID == ownerID {
		return true
	}
	return actor.IsElevated()
}

// RequireOwner 与 CanActOnOwned 相同，但直接返回鉴权错误。
func (g *Guard) RequireOwner(actor Actor, ownerID, what string) error {
	if g.CanActOnOwned(actor, ownerID) {
		return nil
	}
	return errs.PermissionDenied("you can only act on " + what + " for your own vehicles")
}

// CanReview 保修单审核权限（不基于所有权）。
func (g *Guard) CanReview(actor Actor) bool {
	return actor.HasRole(RoleAdmin) || actor.HasRole(RoleEVMStaff)
}

// CanApproveRecall 召回活动的审批权限。
func (g *Guard) CanApproveRecall(actor Actor) bool {
	return actor.HasRole(RoleAdmin)
}

// CanCreateRecall 召回活动的发起权限。
func (g *Guard) CanCreateRecall(actor Actor) bool {
	return actor.HasRole(RoleEVMStaff) || actor.HasRole(RoleAdmin)
}

// CanWorkOnClaim 技师/服务中心人员处理保修单的权限。
func (g *Guard) CanWorkOnClaim(actor Actor) bool {
	return actor.HasRole(RoleSCTechnician) || actor.HasRole(RoleSCStaff) || actor.HasRole(RoleAdmin)
}
