package identity

import (
	"strings"
	"time"
)

// 系统角色。customer 之外的角色均为“提权角色”，不受车辆所有权限制。
const (
	RoleCustomer     = "customer"      // 车主
	RoleAdmin        = "admin"         // 管理员
	RoleEVMStaff     = "evm_staff"     // 厂商人员（发起召回）
	RoleSCStaff      = "sc_staff"      // 服务中心人员
	RoleSCTechnician = "sc_technician" // 服务中心技师
)

// User 是 users 表的 GORM 模型。
type User struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Username        string    `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash    string    `gorm:"size:128;not null"`
	PasswordSalt    string    `gorm:"size:64;not null"`
	FullName        string    `gorm:"size:64"`
	Phone           string    `gorm:"size:32"`
	Email           string    `gorm:"size:128"`
	Roles           string    `gorm:"size:256;not null"` // 逗号分隔，例如 "customer" / "sc_staff,sc_technician"
	ServiceCenterID string    `gorm:"index;size:36"`     // 所属/偏好的服务中心（可空）
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (u User) RolesSlice() []string {
	if strings.TrimSpace(u.Roles) == "" {
		return nil
	}
	parts := strings.Split(u.Roles, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func RolesJoin(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return strings.Join(out, ",")
}

// Actor 是一次调用的已认证身份（由传输层从 JWT 解出后注入）。
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Roles: u.RolesSlice()}
}
