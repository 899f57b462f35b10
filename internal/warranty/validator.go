package warranty

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/config"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
)

// ValidationStatus 保修有效性判定结果标签。
type ValidationStatus string

const (
	WarrantyValid       ValidationStatus = "valid"
	ExpiredDate         ValidationStatus = "expired_date"
	ExpiredMileage      ValidationStatus = "expired_mileage"
	ExpiredBoth         ValidationStatus = "expired_both"
	PartWarrantyExpired ValidationStatus = "part_warranty_expired"
)

// ValidationResult 一次保修校验的结果（临时对象，不落库）。
type ValidationResult struct {
	Status                 ValidationStatus
	DaysRemaining          int   // 距日期到期的天数（可为负；部件过期时取车/件中更差者）
	MileageRemaining       int   // 距里程上限的余量（可为负）
	CanProvidePaidWarranty bool  // 是否还能提供付费保修
	Fee                    int64 // 已计算的付费保修费用（未计算时为 0）
	FeeNote                string
	Reason                 string // 展示用说明，不作为分支依据
	GracePeriodDays        int
}

// Valid 是否仍在免费保修期内。
func (r ValidationResult) Valid() bool { return r.Status == WarrantyValid }

// Validator 保修有效性与费用计算器。
// 纯函数式：只依赖入参与注入的全局规则参数，自身无状态。
type Validator struct {
	cfg config.WarrantyConfig
}

func NewValidator(cfg config.WarrantyConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate 判定某车辆（可选：某装车件）的保修状态。
//
// 规则：
//   - 按日期与里程双轨判定，边界取闭区间（daysRemaining == 0 仍有效）；
//   - 传入装车件且其保修已过期时，部件级判定优先于整车判定；
//   - 付费保修只在过保且 |daysRemaining| 不超过宽限期时提供，宽限期外硬性拒绝。
func (v *Validator) Validate(veh *vehicle.Vehicle, ip *vehicle.InstalledPart, now time.Time) ValidationResult {
	today := toDate(now)

	daysRemaining := daysBetween(today, toDate(veh.WarrantyEndDate))
	mileageRemaining := v.cfg.MileageLimitKm - veh.Mileage

	dateExpired := daysRemaining < 0
	mileageExpired := mileageRemaining < 0

	var status ValidationStatus
	effectiveDays := daysRemaining

	if ip != nil {
		partDays := daysBetween(today, toDate(ip.WarrantyExpirationDate))
		if partDays < 0 {
			// 部件过期优先；宽限期按车/件中更差的天数算（最严格条件）
			status = PartWarrantyExpired
			if partDays < effectiveDays {
				effectiveDays = partDays
			}
		}
	}

	if status == "" {
		switch {
		case dateExpired && mileageExpired:
			status = ExpiredBoth
		case dateExpired:
			status = ExpiredDate
		case mileageExpired:
			status = ExpiredMileage
		default:
			status = WarrantyValid
		}
	}

	canPaid := status != WarrantyValid && abs(effectiveDays) <= v.cfg.GracePeriodDays

	return ValidationResult{
		Status:                 status,
		DaysRemaining:          effectiveDays,
		MileageRemaining:       mileageRemaining,
		CanProvidePaidWarranty: canPaid,
		Reason:                 buildReason(status, effectiveDays, mileageRemaining),
		GracePeriodDays:        v.cfg.GracePeriodDays,
	}
}

// CalculateFee 计算付费保修费用。
// 费率随过期天数在 [min,max] 间线性插值；结果不低于保底费用。
// 只应在 CanProvidePaidWarranty 为真时调用；未给出预估维修费则收保底费用。
func (v *Validator) CalculateFee(daysRemaining int, estimatedRepairCost int64) int64 {
	if estimatedRepairCost <= 0 {
		return v.cfg.BaseFee
	}

	daysExpired := abs(daysRemaining)
	ratio := float64(daysExpired) / float64(v.cfg.GracePeriodDays)
	pct := v.cfg.MinFeePercent + (v.cfg.MaxFeePercent-v.cfg.MinFeePercent)*ratio

	fee := int64(math.Round(float64(estimatedRepairCost) * pct))
	if fee < v.cfg.BaseFee {
		return v.cfg.BaseFee
	}
	return fee
}

// FeeNote 生成费用说明文本（展示用）。
func (v *Validator) FeeNote(daysRemaining, mileageRemaining int, fee int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "warranty fee: %d. ", fee)
	if daysRemaining < 0 {
		fmt.Fprintf(&b, "expired %d days ago. ", -daysRemaining)
	}
	if mileageRemaining < 0 {
		fmt.Fprintf(&b, "mileage limit exceeded by %d km. ", -mileageRemaining)
	}
	b.WriteString("fee covers parts, labor and handling; subject to on-site inspection.")
	return b.String()
}

func buildReason(status ValidationStatus, daysRemaining, mileageRemaining int) string {
	switch status {
	case WarrantyValid:
		return "warranty is still in effect"
	case ExpiredDate:
		return fmt.Sprintf("warranty expired by date (%d days over)", -daysRemaining)
	case ExpiredMileage:
		return fmt.Sprintf("warranty expired by mileage (%d km over)", -mileageRemaining)
	case ExpiredBoth:
		msg := fmt.Sprintf("warranty expired by date (%d days over)", -daysRemaining)
		if mileageRemaining < 0 {
			msg += fmt.Sprintf(" and mileage (%d km over)", -mileageRemaining)
		}
		return msg
	case PartWarrantyExpired:
		return fmt.Sprintf("installed part warranty expired (%d days over)", -daysRemaining)
	default:
		return string(status)
	}
}

// toDate 归一化到当天零点（UTC），天数比较不受时分秒影响。
func toDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
