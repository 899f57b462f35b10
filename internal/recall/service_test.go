package recall

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/config"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/identity"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/notify"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/warranty"
)

// recallFixture 把召回链路上的协作方一次装配好：
// 召回服务、保修服务（带完成回调）和种子数据所需的裸 DB 句柄。
type recallFixture struct {
	db          *gorm.DB
	recall      *Service
	warranty    *warranty.Service
	evmStaff    identity.Actor
	admin       identity.Actor
	tech        identity.Actor
	notifyCalls *countingSink
}

// countingSink 记录通知次数，断言审批/拒绝确实触达了通知面。
type countingSink struct {
	approved int
	declined int
}

func (s *countingSink) CampaignApproved(ctx context.Context, campaignID, partID string, vehicleCount int) error {
	s.approved++
	return nil
}

func (s *countingSink) RecallDeclined(ctx context.Context, campaignID, vehicleID string) error {
	s.declined++
	return nil
}

var _ notify.Sink = (*countingSink)(nil)

func newRecallFixture(t *testing.T) *recallFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// 内存库每个连接各是一个独立实例，收紧到单连接
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&vehicle.Vehicle{}, &vehicle.Part{}, &vehicle.InstalledPart{},
		&warranty.Claim{}, &warranty.WorkLog{}, &warranty.ServiceHistory{},
		&Campaign{}, &Response{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.NewLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	guard := identity.NewGuard()
	vehRepo := vehicle.NewRepo(db)
	validator := warranty.NewValidator(config.WarrantyConfig{
		MileageLimitKm:  100_000,
		GracePeriodDays: 180,
		MinFeePercent:   0.20,
		MaxFeePercent:   0.50,
		BaseFee:         500_000,
	})
	sink := &countingSink{}

	warrantySvc := warranty.NewService(db, warranty.NewRepo(db), vehRepo, guard, validator, log)
	recallSvc := NewService(db, NewRepo(db), vehRepo, guard, log, sink)
	warrantySvc.SetCompletionHook(recallSvc.CompletionHook())

	return &recallFixture{
		db:          db,
		recall:      recallSvc,
		warranty:    warrantySvc,
		evmStaff:    identity.Actor{ID: "evm-1", Roles: []string{identity.RoleEVMStaff}},
		admin:       identity.Actor{ID: "admin-1", Roles: []string{identity.RoleAdmin}},
		tech:        identity.Actor{ID: "tech-1", Roles: []string{identity.RoleSCTechnician}},
		notifyCalls: sink,
	}
}

// seedFleet 落一个目录件和三辆装了该件的车（车主 cust-1..cust-3），
// 其中第一辆装了两个同型件，用来验证按车去重。
func (f *recallFixture) seedFleet(t *testing.T) (partID string, vehicles []*vehicle.Vehicle) {
	t.Helper()
	part := &vehicle.Part{ID: "part-bat", Name: "HV Battery Pack", Category: "battery"}
	if err := f.db.Create(part).Error; err != nil {
		t.Fatalf("seed part: %v", err)
	}
	now := time.Now()
	for i := 1; i <= 3; i++ {
		v := &vehicle.Vehicle{
			ID:                "veh-" + string(rune('0'+i)),
			VIN:               "VIN-00" + string(rune('0'+i)),
			OwnerID:           "cust-" + string(rune('0'+i)),
			Mileage:           20_000,
			WarrantyStartDate: now.AddDate(-2, 0, 0),
			WarrantyEndDate:   now.AddDate(1, 0, 0),
		}
		if err := f.db.Create(v).Error; err != nil {
			t.Fatalf("seed vehicle: %v", err)
		}
		vehicles = append(vehicles, v)
		ip := &vehicle.InstalledPart{
			ID:                     "ip-" + v.ID,
			PartID:                 part.ID,
			VehicleID:              v.ID,
			InstallationDate:       now.AddDate(-2, 0, 0),
			WarrantyExpirationDate: now.AddDate(2, 0, 0),
		}
		if err := f.db.Create(ip).Error; err != nil {
			t.Fatalf("seed installed part: %v", err)
		}
	}
	// 第一辆车上再装一个同型件：审批展开时同车只应产生一条响应
	dup := &vehicle.InstalledPart{
		ID:                     "ip-veh-1-spare",
		PartID:                 part.ID,
		VehicleID:              vehicles[0].ID,
		InstallationDate:       now.AddDate(-1, 0, 0),
		WarrantyExpirationDate: now.AddDate(2, 0, 0),
	}
	if err := f.db.Create(dup).Error; err != nil {
		t.Fatalf("seed duplicate installed part: %v", err)
	}
	return part.ID, vehicles
}

func owner(n int) identity.Actor {
	return identity.Actor{ID: "cust-" + string(rune('0'+n)), Roles: []string{identity.RoleCustomer}}
}

func TestApproveFansOutOneResponsePerVehicle(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, _ := f.seedFleet(t)

	c, err := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "battery fire risk")
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if c.Status != CampaignPendingAdminApproval {
		t.Fatalf("status = %s, want pending_admin_approval", c.Status)
	}

	approved, err := f.recall.Approve(ctx, f.admin, c.ID, "verified with supplier")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != CampaignWaitingCustomerConfirm || approved.ApprovedBy != f.admin.ID || approved.ApprovedAt == nil {
		t.Fatalf("campaign after approve: status=%s by=%s at=%v", approved.Status, approved.ApprovedBy, approved.ApprovedAt)
	}
	if f.notifyCalls.approved != 1 {
		t.Fatalf("approved notifications = %d, want 1", f.notifyCalls.approved)
	}

	var count int64
	if err := f.db.Model(&Response{}).Where("campaign_id = ?", c.ID).Count(&count).Error; err != nil {
		t.Fatalf("count responses: %v", err)
	}
	// 三辆车，其中一辆装了两个问题件，仍只产生三条响应
	if count != 3 {
		t.Fatalf("responses = %d, want 3", count)
	}

	// 重复审批：活动已不在待审批态，响应数不得变化
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, "again"); !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("second approve should fail with invalid transition, got %v", err)
	}
	if err := f.db.Model(&Response{}).Where("campaign_id = ?", c.ID).Count(&count).Error; err != nil {
		t.Fatalf("recount responses: %v", err)
	}
	if count != 3 {
		t.Fatalf("responses after duplicate approve = %d, want 3", count)
	}
}

func TestApprovePermissions(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, _ := f.seedFleet(t)

	c, err := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "coolant leak")
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	// 厂商人员能发起但不能审批
	if _, err := f.recall.Approve(ctx, f.evmStaff, c.ID, "self-approve"); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("evm staff approve should be denied, got %v", err)
	}
	if _, err := f.recall.CreateCampaign(ctx, owner(1), partID, "customer recall"); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("customer create should be denied, got %v", err)
	}
}

func TestCustomerAcceptOpensRecallClaim(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, vehicles := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "battery fire risk")
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	var resp Response
	if err := f.db.Where("campaign_id = ? AND vehicle_id = ?", c.ID, vehicles[0].ID).First(&resp).Error; err != nil {
		t.Fatalf("load response: %v", err)
	}

	confirmed, err := f.recall.CustomerConfirm(ctx, owner(1), resp.ID, true, "please fix asap")
	if err != nil {
		t.Fatalf("CustomerConfirm accept: %v", err)
	}
	if confirmed.Status != ResponseInProgress || confirmed.ClaimID == nil || confirmed.ConfirmedAt == nil {
		t.Fatalf("response after accept: status=%s claim=%v confirmed=%v",
			confirmed.Status, confirmed.ClaimID, confirmed.ConfirmedAt)
	}

	var claims []warranty.Claim
	if err := f.db.Where("recall_campaign_id = ?", c.ID).Find(&claims).Error; err != nil {
		t.Fatalf("load claims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("claims = %d, want 1", len(claims))
	}
	claim := claims[0]
	if claim.Status != warranty.StatusProcessing {
		t.Fatalf("recall claim status = %s, want processing", claim.Status)
	}
	if claim.IsPaid || claim.WarrantyFee != 0 {
		t.Fatalf("recall claim must never be billed: paid=%v fee=%d", claim.IsPaid, claim.WarrantyFee)
	}
	if claim.Description != "RECALL: battery fire risk" {
		t.Fatalf("description = %q", claim.Description)
	}
	if claim.RecallResponseID == nil || *claim.RecallResponseID != resp.ID || *confirmed.ClaimID != claim.ID {
		t.Fatal("claim and response back references do not line up")
	}

	// 已表态的响应不能再确认
	if _, err := f.recall.CustomerConfirm(ctx, owner(1), resp.ID, true, "again"); !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("second confirm should fail with invalid transition, got %v", err)
	}
}

func TestCustomerDecline(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, vehicles := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "sensor drift")
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	var resp Response
	if err := f.db.Where("campaign_id = ? AND vehicle_id = ?", c.ID, vehicles[1].ID).First(&resp).Error; err != nil {
		t.Fatalf("load response: %v", err)
	}

	declined, err := f.recall.CustomerConfirm(ctx, owner(2), resp.ID, false, "car already sold")
	if err != nil {
		t.Fatalf("CustomerConfirm decline: %v", err)
	}
	if declined.Status != ResponseDeclined || declined.ConfirmedAt == nil || declined.CustomerNote != "car already sold" {
		t.Fatalf("response after decline: status=%s confirmed=%v note=%q",
			declined.Status, declined.ConfirmedAt, declined.CustomerNote)
	}
	if f.notifyCalls.declined != 1 {
		t.Fatalf("declined notifications = %d, want 1", f.notifyCalls.declined)
	}

	// 拒绝不生成保修单
	var claimCount int64
	if err := f.db.Model(&warranty.Claim{}).Where("recall_campaign_id = ?", c.ID).Count(&claimCount).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if claimCount != 0 {
		t.Fatalf("claims after decline = %d, want 0", claimCount)
	}

	// 终态不可逆
	if _, err := f.recall.CustomerConfirm(ctx, owner(2), resp.ID, true, "changed my mind"); !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("confirm after decline should fail with invalid transition, got %v", err)
	}
}

func TestConfirmOwnershipEnforced(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, vehicles := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "sensor drift")
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	var resp Response
	if err := f.db.Where("campaign_id = ? AND vehicle_id = ?", c.ID, vehicles[0].ID).First(&resp).Error; err != nil {
		t.Fatalf("load response: %v", err)
	}

	if _, err := f.recall.CustomerConfirm(ctx, owner(2), resp.ID, true, ""); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("confirm by non-owner should be denied, got %v", err)
	}
	if _, err := f.recall.GetResponse(ctx, owner(2), resp.ID); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("get by non-owner should be denied, got %v", err)
	}
	got, err := f.recall.GetResponse(ctx, owner(1), resp.ID)
	if err != nil {
		t.Fatalf("GetResponse by owner: %v", err)
	}
	if got.ID != resp.ID || got.Status != ResponsePending {
		t.Fatalf("got response id=%s status=%s", got.ID, got.Status)
	}
}

func TestCompletionHookClosesResponse(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, vehicles := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "battery fire risk")
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	var resp Response
	if err := f.db.Where("campaign_id = ? AND vehicle_id = ?", c.ID, vehicles[0].ID).First(&resp).Error; err != nil {
		t.Fatalf("load response: %v", err)
	}
	confirmed, err := f.recall.CustomerConfirm(ctx, owner(1), resp.ID, true, "")
	if err != nil {
		t.Fatalf("CustomerConfirm: %v", err)
	}

	// 召回保修单直接处于 processing，技师可径行完工
	done, err := f.warranty.TechComplete(ctx, f.tech, *confirmed.ClaimID, "battery pack replaced")
	if err != nil {
		t.Fatalf("TechComplete: %v", err)
	}
	if done.Status != warranty.StatusCompleted {
		t.Fatalf("claim status = %s, want completed", done.Status)
	}

	var after Response
	if err := f.db.Where("id = ?", resp.ID).First(&after).Error; err != nil {
		t.Fatalf("reload response: %v", err)
	}
	if after.Status != ResponseCompleted || after.CompletedAt == nil {
		t.Fatalf("response after completion: status=%s completed=%v", after.Status, after.CompletedAt)
	}
}

func TestAcceptWithMissingInstalledPart(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, vehicles := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "sensor drift")
	if _, err := f.recall.Approve(ctx, f.admin, c.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	var resp Response
	if err := f.db.Where("campaign_id = ? AND vehicle_id = ?", c.ID, vehicles[2].ID).First(&resp).Error; err != nil {
		t.Fatalf("load response: %v", err)
	}

	// 响应建档后问题件被全部拆下：接受时应报数据不一致，而不是落一张空单
	if err := f.db.Where("vehicle_id = ? AND part_id = ?", vehicles[2].ID, partID).
		Delete(&vehicle.InstalledPart{}).Error; err != nil {
		t.Fatalf("remove installed parts: %v", err)
	}

	if _, err := f.recall.CustomerConfirm(ctx, owner(3), resp.ID, true, ""); !errs.IsKind(err, errs.KindInconsistency) {
		t.Fatalf("expected inconsistency error, got %v", err)
	}

	var after Response
	if err := f.db.Where("id = ?", resp.ID).First(&after).Error; err != nil {
		t.Fatalf("reload response: %v", err)
	}
	if after.Status != ResponsePending {
		t.Fatalf("response status = %s, want pending after rolled back accept", after.Status)
	}
}

func TestRejectAndDeleteCampaign(t *testing.T) {
	f := newRecallFixture(t)
	ctx := context.Background()
	partID, _ := f.seedFleet(t)

	c, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "trim defect")
	if _, err := f.recall.Reject(ctx, f.admin, c.ID, ""); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("reject without reason should fail validation, got %v", err)
	}
	rejected, err := f.recall.Reject(ctx, f.admin, c.ID, "not safety relevant")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != CampaignRejectedByAdmin || rejected.AdminNote != "not safety relevant" {
		t.Fatalf("campaign after reject: status=%s note=%q", rejected.Status, rejected.AdminNote)
	}
	// 已否决的活动不可再删
	if err := f.recall.Delete(ctx, f.evmStaff, c.ID); !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("delete after reject should fail, got %v", err)
	}

	c2, _ := f.recall.CreateCampaign(ctx, f.evmStaff, partID, "second thoughts")
	if err := f.recall.Delete(ctx, f.admin, c2.ID); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("delete by non-creator should be denied, got %v", err)
	}
	if err := f.recall.Delete(ctx, f.evmStaff, c2.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.recall.GetCampaign(ctx, c2.ID); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("deleted campaign should be gone, got %v", err)
	}
}
