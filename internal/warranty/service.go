package warranty

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/identity"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
)

// CompletionHook 保修单完成后的回调，与保修单落库同事务执行。
// 召回模块用它把对应召回响应推进到完成态，避免两个包互相 import。
type CompletionHook func(ctx context.Context, tx *gorm.DB, claim *Claim) error

// Service 保修单业务逻辑。
type Service struct {
	db        *gorm.DB
	repo      *Repo
	vehicles  *vehicle.Repo
	guard     *identity.Guard
	validator *Validator
	log       logger.Logger

	completionHook CompletionHook
}

func NewService(db *gorm.DB, repo *Repo, vehicles *vehicle.Repo, guard *identity.Guard, validator *Validator, log logger.Logger) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		vehicles:  vehicles,
		guard:     guard,
		validator: validator,
		log:       log,
	}
}

// SetCompletionHook 注册完成回调。在 main 装配阶段调用一次，之后只读。
func (s *Service) SetCompletionHook(h CompletionHook) {
	s.completionHook = h
}

// CreateClaimInput 创建保修单的入参。
type CreateClaimInput struct {
	VehicleID           string
	InstalledPartID     string
	Description         string
	ServiceCenterID     string
	EstimatedRepairCost int64
	// AcceptPaidWarranty 客户是否接受付费保修。保修已过期但在宽限期内时必须为真，
	// 否则直接拒绝创建；保修仍有效时不得为真（付费意向无从成立，显式拒绝）。
	AcceptPaidWarranty bool
}

// CreateClaim 车主（或代办的内部人员）发起保修单。
//
// 流程：定位车辆与装车件 -> 归属校验 -> 保修有效性判定 ->
// 有效则免费受理，过期但在宽限期内且客户接受付费则按费率收费受理，
// 其余一律拒绝。新单以 pending_review 落库。
func (s *Service) CreateClaim(ctx context.Context, actor identity.Actor, in CreateClaimInput) (*Claim, error) {
	if in.VehicleID == "" || in.InstalledPartID == "" {
		return nil, errs.Validation("vehicle id and installed part id are required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, errs.Validation("claim description is required")
	}
	if in.EstimatedRepairCost < 0 {
		return nil, errs.Validation("estimated repair cost must not be negative")
	}

	veh, err := s.vehicles.FindByID(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("vehicle", in.VehicleID)
		}
		return nil, err
	}
	ip, err := s.vehicles.FindInstalledPartByID(ctx, in.InstalledPartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("installed part", in.InstalledPartID)
		}
		return nil, err
	}
	if ip.VehicleID != veh.ID {
		return nil, errs.Validation("installed part does not belong to the given vehicle")
	}

	if err := s.guard.RequireOwner(actor, veh.OwnerID, "warranty claims"); err != nil {
		return nil, err
	}

	now := time.Now()
	result := s.validator.Validate(veh, ip, now)

	claim := &Claim{
		ID:              uuid.NewString(),
		VehicleID:       veh.ID,
		InstalledPartID: ip.ID,
		Status:          StatusPendingReview,
		Description:     in.Description,
		ServiceCenterID: in.ServiceCenterID,
		ClaimDate:       now,
	}

	if result.Valid() {
		if in.AcceptPaidWarranty {
			return nil, errs.Validation("warranty is still valid; paid warranty is not applicable")
		}
	} else {
		if !result.CanProvidePaidWarranty {
			return nil, errs.Validationf("warranty cannot be honored: %s (grace period %d days exceeded)",
				result.Reason, result.GracePeriodDays)
		}
		if !in.AcceptPaidWarranty {
			return nil, errs.Validationf("warranty has expired: %s; paid warranty is available but was not accepted",
				result.Reason)
		}
		// 付费字段只在付费单上落值；免费单与召回单保持零值
		fee := s.validator.CalculateFee(result.DaysRemaining, in.EstimatedRepairCost)
		claim.IsPaid = true
		claim.EstimatedRepairCost = in.EstimatedRepairCost
		claim.WarrantyFee = fee
		claim.FeeNote = s.validator.FeeNote(result.DaysRemaining, result.MileageRemaining, fee)
	}

	if err := s.repo.Create(ctx, claim); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"claim_id":   claim.ID,
		"vehicle_id": claim.VehicleID,
		"paid":       claim.IsPaid,
		"fee":        claim.WarrantyFee,
	}).Info("warranty claim created")
	return claim, nil
}

// NewRecallClaim 构造一条召回产生的保修单（不落库，由召回事务统一提交）。
// 召回单免审核，直接以 processing 入场，且永不收费。
func NewRecallClaim(vehicleID, installedPartID, campaignID, responseID, reason string, now time.Time) *Claim {
	return &Claim{
		ID:               uuid.NewString(),
		VehicleID:        vehicleID,
		InstalledPartID:  installedPartID,
		Status:           StatusProcessing,
		Description:      "RECALL: " + reason,
		RecallCampaignID: &campaignID,
		RecallResponseID: &responseID,
		IsPaid:           false,
		ClaimDate:        now,
	}
}

// AdminAccept 审核通过：pending_review -> processing。
func (s *Service) AdminAccept(ctx context.Context, actor identity.Actor, claimID string) (*Claim, error) {
	if !s.guard.CanReview(actor) {
		return nil, errs.PermissionDenied("only admin or evm staff may review claims")
	}
	return s.transition(ctx, claimID, StatusProcessing, func(c *Claim) error { return nil })
}

// AdminReject 审核驳回：pending_review -> rejected，驳回理由必填。
func (s *Service) AdminReject(ctx context.Context, actor identity.Actor, claimID, reason string) (*Claim, error) {
	if !s.guard.CanReview(actor) {
		return nil, errs.PermissionDenied("only admin or evm staff may review claims")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validation("rejection reason is required")
	}
	return s.transition(ctx, claimID, StatusRejected, func(c *Claim) error {
		c.RejectionReason = reason
		return nil
	})
}

// transition 在事务里锁单、校验流转并落库。
func (s *Service) transition(ctx context.Context, claimID string, to Status, mutate func(*Claim) error) (*Claim, error) {
	var claim *Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		c, err := repo.GetByIDForUpdate(ctx, claimID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("claim", claimID)
			}
			return err
		}
		if err := ApplyTransition(c, to, time.Now()); err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		if err := repo.Update(ctx, c); err != nil {
			return err
		}
		claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"claim_id": claim.ID,
		"status":   claim.Status,
	}).Info("warranty claim transitioned")
	return claim, nil
}

// TechStart 技师开始作业：只在 processing 状态下允许，落一条工时记录。
// 不改变单据状态，重复开工（已有未收尾记录）报错。
func (s *Service) TechStart(ctx context.Context, actor identity.Actor, claimID, note string) (*WorkLog, error) {
	if !s.guard.CanWorkOnClaim(actor) {
		return nil, errs.PermissionDenied("only service center staff may work on claims")
	}

	claim, err := s.repo.GetByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("claim", claimID)
		}
		return nil, err
	}
	if claim.Status != StatusProcessing {
		return nil, errs.InvalidTransition("claim", string(claim.Status), "work in progress")
	}

	if _, err := s.repo.FindOpenWorkLog(ctx, claimID, actor.ID); err == nil {
		return nil, errs.Validation("technician already has an open work log on this claim")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wl := &WorkLog{
		ID:           uuid.NewString(),
		ClaimID:      claimID,
		TechnicianID: actor.ID,
		StartTime:    time.Now(),
		Description:  note,
	}
	if err := s.repo.CreateWorkLog(ctx, wl); err != nil {
		return nil, err
	}

	if claim.AssignedTechID == "" {
		claim.AssignedTechID = actor.ID
		if err := s.repo.Update(ctx, claim); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(map[string]interface{}{
		"claim_id": claimID,
		"tech_id":  actor.ID,
	}).Info("work started on claim")
	return wl, nil
}

// TechComplete 完工：processing -> completed。
// 同事务内收尾工时记录、写维修历史，召回单还要把召回响应一并推进到完成。
func (s *Service) TechComplete(ctx context.Context, actor identity.Actor, claimID, note string) (*Claim, error) {
	if !s.guard.CanWorkOnClaim(actor) {
		return nil, errs.PermissionDenied("only service center staff may work on claims")
	}

	now := time.Now()
	var claim *Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		c, err := repo.GetByIDForUpdate(ctx, claimID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("claim", claimID)
			}
			return err
		}
		if err := ApplyTransition(c, StatusCompleted, now); err != nil {
			return err
		}
		if err := repo.Update(ctx, c); err != nil {
			return err
		}

		if wl, err := repo.FindOpenWorkLog(ctx, claimID, actor.ID); err == nil {
			end := now
			wl.EndTime = &end
			if note != "" {
				wl.Description = note
			}
			if err := repo.UpdateWorkLog(ctx, wl); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		sh := &ServiceHistory{
			ID:          uuid.NewString(),
			VehicleID:   c.VehicleID,
			ClaimID:     c.ID,
			ServiceDate: now,
			Description: c.Description,
		}
		if err := repo.CreateServiceHistory(ctx, sh); err != nil {
			return err
		}

		if c.FromRecall() && s.completionHook != nil {
			if err := s.completionHook(ctx, tx, c); err != nil {
				return err
			}
		}

		claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"claim_id": claim.ID,
		"recall":   claim.FromRecall(),
	}).Info("warranty claim completed")
	return claim, nil
}

// GetClaim 查询单条保修单，普通客户只能看自己车的。
func (s *Service) GetClaim(ctx context.Context, actor identity.Actor, claimID string) (*Claim, error) {
	claim, err := s.repo.GetByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("claim", claimID)
		}
		return nil, err
	}
	veh, err := s.vehicles.FindByID(ctx, claim.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Inconsistency("claim references missing vehicle " + claim.VehicleID)
		}
		return nil, err
	}
	if err := s.guard.RequireOwner(actor, veh.OwnerID, "warranty claims"); err != nil {
		return nil, err
	}
	return claim, nil
}

// ListClaims 列表查询：内部人员按过滤条件查，普通客户固定只查自己名下的。
func (s *Service) ListClaims(ctx context.Context, actor identity.Actor, f ListFilter) ([]Claim, int64, error) {
	if actor.IsElevated() {
		return s.repo.List(ctx, f)
	}
	return s.repo.ListByOwner(ctx, actor.ID, f.Offset, f.Limit)
}

// ValidateWarranty 只做保修有效性预检，不落库。
// 费用按传入的预估维修费试算，方便客户在提单前确认。
func (s *Service) ValidateWarranty(ctx context.Context, actor identity.Actor, vehicleID, installedPartID string, estimatedRepairCost int64) (*ValidationResult, error) {
	veh, err := s.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("vehicle", vehicleID)
		}
		return nil, err
	}
	return s.validateVehicle(ctx, actor, veh, installedPartID, estimatedRepairCost)
}

// ValidateWarrantyByVIN 同 ValidateWarranty，但按 VIN 定位车辆
// （客户手里通常只有 VIN，没有内部 ID）。
func (s *Service) ValidateWarrantyByVIN(ctx context.Context, actor identity.Actor, vin, installedPartID string, estimatedRepairCost int64) (*ValidationResult, error) {
	veh, err := s.vehicles.FindByVIN(ctx, vin)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("vehicle", vin)
		}
		return nil, err
	}
	return s.validateVehicle(ctx, actor, veh, installedPartID, estimatedRepairCost)
}

func (s *Service) validateVehicle(ctx context.Context, actor identity.Actor, veh *vehicle.Vehicle, installedPartID string, estimatedRepairCost int64) (*ValidationResult, error) {
	if err := s.guard.RequireOwner(actor, veh.OwnerID, "warranty checks"); err != nil {
		return nil, err
	}

	var ip *vehicle.InstalledPart
	if installedPartID != "" {
		var err error
		ip, err = s.vehicles.FindInstalledPartByID(ctx, installedPartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.NotFound("installed part", installedPartID)
			}
			return nil, err
		}
		if ip.VehicleID != veh.ID {
			return nil, errs.Validation("installed part does not belong to the given vehicle")
		}
	}

	result := s.validator.Validate(veh, ip, time.Now())
	if result.CanProvidePaidWarranty {
		result.Fee = s.validator.CalculateFee(result.DaysRemaining, estimatedRepairCost)
		result.FeeNote = s.validator.FeeNote(result.DaysRemaining, result.MileageRemaining, result.Fee)
	}
	return &result, nil
}

// VehicleServiceHistory 车辆维修档案。
func (s *Service) VehicleServiceHistory(ctx context.Context, actor identity.Actor, vehicleID string) ([]ServiceHistory, error) {
	veh, err := s.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("vehicle", vehicleID)
		}
		return nil, err
	}
	if err := s.guard.RequireOwner(actor, veh.OwnerID, "service history"); err != nil {
		return nil, err
	}
	return s.repo.ListServiceHistory(ctx, vehicleID)
}

// ClaimWorkLogs 保修单工时明细（内部人员可见）。
func (s *Service) ClaimWorkLogs(ctx context.Context, actor identity.Actor, claimID string) ([]WorkLog, error) {
	if !s.guard.CanWorkOnClaim(actor) && !s.guard.CanReview(actor) {
		return nil, errs.PermissionDenied("work logs are visible to staff only")
	}
	return s.repo.ListWorkLogs(ctx, claimID)
}
