package recall

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
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/notify"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/warranty"
)

// Service 召回业务逻辑。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	vehicles *vehicle.Repo
	guard    *identity.Guard
	log      logger.Logger
	notifier notify.Sink
}

func NewService(db *gorm.DB, repo *Repo, vehicles *vehicle.Repo, guard *identity.Guard, log logger.Logger, notifier notify.Sink) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		vehicles: vehicles,
		guard:    guard,
		log:      log,
		notifier: notifier,
	}
}

// CreateCampaign 厂商人员发起召回活动，落库后等待管理员审批。
func (s *Service) CreateCampaign(ctx context.Context, actor identity.Actor, partID, reason string) (*Campaign, error) {
	if !s.guard.CanCreateRecall(actor) {
		return nil, errs.PermissionDenied("only evm staff or admin may create recall campaigns")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validation("recall reason is required")
	}
	if _, err := s.vehicles.FindPartByID(ctx, partID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("part", partID)
		}
		return nil, err
	}

	c := &Campaign{
		ID:        uuid.NewString(),
		PartID:    partID,
		Status:    CampaignPendingAdminApproval,
		Reason:    reason,
		CreatedBy: actor.ID,
	}
	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"campaign_id": c.ID,
		"part_id":     partID,
	}).Info("recall campaign created, pending approval")
	return c, nil
}

// Approve 管理员批准召回：同事务内推进活动状态，并为每辆装了问题件的
// 车辆生成一条 pending 响应（同车多件只取一件，复合唯一索引兜底）。
func (s *Service) Approve(ctx context.Context, actor identity.Actor, campaignID, note string) (*Campaign, error) {
	if !s.guard.CanApproveRecall(actor) {
		return nil, errs.PermissionDenied("only admin may approve recall campaigns")
	}

	now := time.Now()
	var campaign *Campaign
	var affected int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		c, err := repo.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("recall campaign", campaignID)
			}
			return err
		}
		if err := ApplyCampaignTransition(c, CampaignWaitingCustomerConfirm, now); err != nil {
			return err
		}
		c.ApprovedBy = actor.ID
		c.AdminNote = note
		if err := repo.UpdateCampaign(ctx, c); err != nil {
			return err
		}

		installed, err := vehicle.NewRepo(tx).ListInstalledPartsByPart(ctx, c.PartID)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(installed))
		responses := make([]Response, 0, len(installed))
		for _, ip := range installed {
			if seen[ip.VehicleID] {
				continue
			}
			seen[ip.VehicleID] = true
			responses = append(responses, Response{
				ID:              uuid.NewString(),
				CampaignID:      c.ID,
				VehicleID:       ip.VehicleID,
				InstalledPartID: ip.ID,
				Status:          ResponsePending,
			})
		}
		if err := repo.CreateResponses(ctx, responses); err != nil {
			return err
		}

		campaign = c
		affected = len(responses)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.CampaignApproved(ctx, campaign.ID, campaign.PartID, affected); err != nil {
		s.log.WithField("campaign_id", campaign.ID).Warnf("notify failed: %v", err)
	}
	s.log.WithFields(map[string]interface{}{
		"campaign_id":   campaign.ID,
		"vehicle_count": affected,
	}).Info("recall campaign approved")
	return campaign, nil
}

// Reject 管理员否决召回，说明必填。
func (s *Service) Reject(ctx context.Context, actor identity.Actor, campaignID, reason string) (*Campaign, error) {
	if !s.guard.CanApproveRecall(actor) {
		return nil, errs.PermissionDenied("only admin may reject recall campaigns")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validation("rejection reason is required")
	}

	var campaign *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		c, err := repo.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("recall campaign", campaignID)
			}
			return err
		}
		if err := ApplyCampaignTransition(c, CampaignRejectedByAdmin, time.Now()); err != nil {
			return err
		}
		c.AdminNote = reason
		if err := repo.UpdateCampaign(ctx, c); err != nil {
			return err
		}
		campaign = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("campaign_id", campaign.ID).Info("recall campaign rejected by admin")
	return campaign, nil
}

// Delete 发起人撤回自己的召回活动，仅限还未审批时。
func (s *Service) Delete(ctx context.Context, actor identity.Actor, campaignID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		c, err := repo.GetCampaignForUpdate(ctx, campaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("recall campaign", campaignID)
			}
			return err
		}
		if c.CreatedBy != actor.ID {
			return errs.PermissionDenied("only the campaign creator may delete it")
		}
		if c.Status != CampaignPendingAdminApproval {
			return errs.InvalidTransition("recall campaign", string(c.Status), "deleted")
		}
		return repo.DeleteCampaign(ctx, campaignID)
	})
}

// CustomerConfirm 车主对召回响应表态。
//
// 接受：响应推进到 in_progress，并在同事务内生成免费保修单
// （跳过审核直接 processing），两边互留回链。
// 拒绝：响应进入 declined 终态，并告警给发起方。
func (s *Service) CustomerConfirm(ctx context.Context, actor identity.Actor, responseID string, accept bool, note string) (*Response, error) {
	now := time.Now()
	var response *Response
	var campaignID, vehicleID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepo(tx)
		resp, err := repo.GetResponseForUpdate(ctx, responseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("recall response", responseID)
			}
			return err
		}

		vehRepo := vehicle.NewRepo(tx)
		veh, err := vehRepo.FindByID(ctx, resp.VehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.Inconsistency("recall response references missing vehicle " + resp.VehicleID)
			}
			return err
		}
		if err := s.guard.RequireOwner(actor, veh.OwnerID, "recall responses"); err != nil {
			return err
		}

		c, err := repo.GetCampaign(ctx, resp.CampaignID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.Inconsistency("recall response references missing campaign " + resp.CampaignID)
			}
			return err
		}

		if !accept {
			if err := ApplyResponseTransition(resp, ResponseDeclined, now); err != nil {
				return err
			}
			resp.CustomerNote = note
			if err := repo.UpdateResponse(ctx, resp); err != nil {
				return err
			}
			response = resp
			campaignID, vehicleID = c.ID, veh.ID
			return nil
		}

		// 接受路径：定位要修的装车件。响应建档时记录的安装件可能已被换下，
		// 优先用回链，找不到再按 (vehicle, part) 现查；都没有就是数据不一致。
		ip, err := vehRepo.FindInstalledPartByID(ctx, resp.InstalledPartID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			ip, err = vehRepo.FindInstalledPartForVehicle(ctx, veh.ID, c.PartID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errs.Inconsistency("no installed part of the recalled type found on vehicle " + veh.ID)
				}
				return err
			}
		}

		if err := ApplyResponseTransition(resp, ResponseAccepted, now); err != nil {
			return err
		}

		claim := warranty.NewRecallClaim(veh.ID, ip.ID, c.ID, resp.ID, c.Reason, now)
		if err := warranty.NewRepo(tx).Create(ctx, claim); err != nil {
			return err
		}

		// 保修单已直接进入 processing，响应同步推进
		if err := ApplyResponseTransition(resp, ResponseInProgress, now); err != nil {
			return err
		}
		resp.ClaimID = &claim.ID
		resp.CustomerNote = note
		if err := repo.UpdateResponse(ctx, resp); err != nil {
			return err
		}

		response = resp
		campaignID, vehicleID = c.ID, veh.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !accept {
		if err := s.notifier.RecallDeclined(ctx, campaignID, vehicleID); err != nil {
			s.log.WithField("response_id", response.ID).Warnf("notify failed: %v", err)
		}
	}
	s.log.WithFields(map[string]interface{}{
		"response_id": response.ID,
		"status":      response.Status,
	}).Info("recall response confirmed")
	return response, nil
}

// CompletionHook 返回注入给保修模块的完成回调：
// 召回保修单完工时，在同一事务里把对应响应推进到 completed。
func (s *Service) CompletionHook() warranty.CompletionHook {
	return func(ctx context.Context, tx *gorm.DB, claim *warranty.Claim) error {
		if claim.RecallResponseID == nil {
			return nil
		}
		repo := NewRepo(tx)
		resp, err := repo.GetResponseForUpdate(ctx, *claim.RecallResponseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.Inconsistency("claim references missing recall response " + *claim.RecallResponseID)
			}
			return err
		}
		if err := ApplyResponseTransition(resp, ResponseCompleted, time.Now()); err != nil {
			return err
		}
		return repo.UpdateResponse(ctx, resp)
	}
}

// GetCampaign 查询召回活动。
func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("recall campaign", campaignID)
		}
		return nil, err
	}
	return c, nil
}

// ListCampaigns 活动列表，内部人员视角。
func (s *Service) ListCampaigns(ctx context.Context, actor identity.Actor, status CampaignStatus, offset, limit int) ([]Campaign, int64, error) {
	if !actor.IsElevated() {
		// 普通客户只看得到已批准的活动
		if status == "" {
			status = CampaignWaitingCustomerConfirm
		} else if status != CampaignWaitingCustomerConfirm {
			return nil, 0, errs.PermissionDenied("customers may only list approved campaigns")
		}
	}
	return s.repo.ListCampaigns(ctx, status, offset, limit)
}

// GetResponse 查询单条召回响应，普通客户只能看自己车上的。
func (s *Service) GetResponse(ctx context.Context, actor identity.Actor, responseID string) (*Response, error) {
	resp, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("recall response", responseID)
		}
		return nil, err
	}
	veh, err := s.vehicles.FindByID(ctx, resp.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Inconsistency("recall response references missing vehicle " + resp.VehicleID)
		}
		return nil, err
	}
	if err := s.guard.RequireOwner(actor, veh.OwnerID, "recall responses"); err != nil {
		return nil, err
	}
	return resp, nil
}

// MyResponses 车主名下待处理/历史召回响应。
func (s *Service) MyResponses(ctx context.Context, actor identity.Actor) ([]Response, error) {
	return s.repo.ListResponsesByOwner(ctx, actor.ID)
}

// CampaignResponses 活动下的响应列表（内部人员视角）。
func (s *Service) CampaignResponses(ctx context.Context, actor identity.Actor, campaignID string, offset, limit int) ([]Response, int64, error) {
	if !actor.IsElevated() {
		return nil, 0, errs.PermissionDenied("campaign responses are visible to staff only")
	}
	return s.repo.ListResponsesByCampaign(ctx, campaignID, offset, limit)
}

// CampaignProgress 活动进度：总数与未完结数。
func (s *Service) CampaignProgress(ctx context.Context, actor identity.Actor, campaignID string) (total, open int64, err error) {
	if !actor.IsElevated() {
		return 0, 0, errs.PermissionDenied("campaign progress is visible to staff only")
	}
	_, total, err = s.repo.ListResponsesByCampaign(ctx, campaignID, 0, 1)
	if err != nil {
		return 0, 0, err
	}
	open, err = s.repo.CountOpenResponses(ctx, campaignID)
	return total, open, err
}
