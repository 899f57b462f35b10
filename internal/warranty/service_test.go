package warranty

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/identity"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
)

func newTestDB(t *testing.T) *gorm.DB {
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
		&Claim{}, &WorkLog{}, &ServiceHistory{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	log, err := logger.NewLogger("error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewService(db, NewRepo(db), vehicle.NewRepo(db), identity.NewGuard(), testValidator(), log)
}

func seedVehicleWithPart(t *testing.T, db *gorm.DB, ownerID, vin string, end time.Time, mileage int) (*vehicle.Vehicle, *vehicle.InstalledPart) {
	t.Helper()
	veh := &vehicle.Vehicle{
		ID:                "veh-" + vin,
		VIN:               vin,
		OwnerID:           ownerID,
		Mileage:           mileage,
		WarrantyStartDate: end.AddDate(-3, 0, 0),
		WarrantyEndDate:   end,
	}
	if err := db.Create(veh).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	ip := &vehicle.InstalledPart{
		ID:                     "ip-" + vin,
		PartID:                 "part-1",
		VehicleID:              veh.ID,
		InstallationDate:       end.AddDate(-3, 0, 0),
		WarrantyExpirationDate: end.AddDate(1, 0, 0),
	}
	if err := db.Create(ip).Error; err != nil {
		t.Fatalf("seed installed part: %v", err)
	}
	return veh, ip
}

var (
	testOwner = identity.Actor{ID: "cust-1", Roles: []string{identity.RoleCustomer}}
	testAdmin = identity.Actor{ID: "admin-1", Roles: []string{identity.RoleAdmin}}
	testTech  = identity.Actor{ID: "tech-1", Roles: []string{identity.RoleSCTechnician}}
)

func TestCreateClaimFreeKeepsPaidFieldsZero(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-FREE", time.Now().AddDate(1, 0, 0), 30_000)

	claim, err := svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:           veh.ID,
		InstalledPartID:     ip.ID,
		Description:         "battery range degraded",
		EstimatedRepairCost: 800_000, // 在保免费受理，预估费不得落到单上
	})
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if claim.Status != StatusPendingReview {
		t.Fatalf("status = %s, want pending_review", claim.Status)
	}

	var got Claim
	if err := db.Where("id = ?", claim.ID).First(&got).Error; err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	if got.IsPaid || got.EstimatedRepairCost != 0 || got.WarrantyFee != 0 || got.FeeNote != "" {
		t.Fatalf("free claim carries paid fields: paid=%v cost=%d fee=%d note=%q",
			got.IsPaid, got.EstimatedRepairCost, got.WarrantyFee, got.FeeNote)
	}
}

func TestCreateClaimPaidIntentOnValidWarranty(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-VALID", time.Now().AddDate(1, 0, 0), 30_000)

	_, err := svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:          veh.ID,
		InstalledPartID:    ip.ID,
		Description:        "noise from rear axle",
		AcceptPaidWarranty: true, // 在保期内不存在付费方案
	})
	if err == nil {
		t.Fatal("expected validation error for paid intent on valid warranty")
	}
	if !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
}

func TestCreateClaimPaidPath(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	// 过期 10 天、里程在限内：可付费，按比例算出来低于保底，收保底
	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-EXP", time.Now().AddDate(0, 0, -10), 30_000)

	claim, err := svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:           veh.ID,
		InstalledPartID:     ip.ID,
		Description:         "coolant pump failure",
		EstimatedRepairCost: 1_000_000,
		AcceptPaidWarranty:  true,
	})
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if !claim.IsPaid || claim.WarrantyFee != 500_000 {
		t.Fatalf("paid=%v fee=%d, want paid with base fee", claim.IsPaid, claim.WarrantyFee)
	}
	if claim.EstimatedRepairCost != 1_000_000 || claim.FeeNote == "" {
		t.Fatalf("estimate=%d note=%q, want estimate and fee note persisted",
			claim.EstimatedRepairCost, claim.FeeNote)
	}

	// 未接受付费方案时直接拒绝
	_, err = svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:       veh.ID,
		InstalledPartID: ip.ID,
		Description:     "coolant pump failure",
	})
	if !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("expected validation error without paid acceptance, got %v", err)
	}
}

func TestCreateClaimOwnership(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-OWN", time.Now().AddDate(1, 0, 0), 10_000)

	stranger := identity.Actor{ID: "cust-2", Roles: []string{identity.RoleCustomer}}
	_, err := svc.CreateClaim(ctx, stranger, CreateClaimInput{
		VehicleID:       veh.ID,
		InstalledPartID: ip.ID,
		Description:     "not my car",
	})
	if !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestClaimReviewAndCompletionFlow(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	hookCalled := false
	svc.SetCompletionHook(func(ctx context.Context, tx *gorm.DB, c *Claim) error {
		hookCalled = true
		return nil
	})

	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-FLOW", time.Now().AddDate(1, 0, 0), 10_000)
	claim, err := svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:       veh.ID,
		InstalledPartID: ip.ID,
		Description:     "door handle stuck",
	})
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}

	if _, err := svc.AdminAccept(ctx, testOwner, claim.ID); !errs.IsKind(err, errs.KindPermissionDenied) {
		t.Fatalf("customer review should be denied, got %v", err)
	}
	if _, err := svc.AdminAccept(ctx, testAdmin, claim.ID); err != nil {
		t.Fatalf("AdminAccept: %v", err)
	}
	if _, err := svc.AdminAccept(ctx, testAdmin, claim.ID); !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("second accept should fail with invalid transition, got %v", err)
	}

	wl, err := svc.TechStart(ctx, testTech, claim.ID, "inspecting")
	if err != nil {
		t.Fatalf("TechStart: %v", err)
	}
	if wl.EndTime != nil {
		t.Fatal("fresh work log must be open")
	}

	done, err := svc.TechComplete(ctx, testTech, claim.ID, "handle replaced")
	if err != nil {
		t.Fatalf("TechComplete: %v", err)
	}
	if done.Status != StatusCompleted || done.ResolutionDate == nil {
		t.Fatalf("status=%s resolution=%v, want completed with resolution date", done.Status, done.ResolutionDate)
	}
	// 非召回单完工不触发召回回调
	if hookCalled {
		t.Fatal("completion hook must not fire for standalone claims")
	}

	var gotWL WorkLog
	if err := db.Where("claim_id = ?", claim.ID).First(&gotWL).Error; err != nil {
		t.Fatalf("reload work log: %v", err)
	}
	if gotWL.EndTime == nil {
		t.Fatal("work log not closed on completion")
	}

	var histCount int64
	if err := db.Model(&ServiceHistory{}).Where("claim_id = ?", claim.ID).Count(&histCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("service history rows = %d, want 1", histCount)
	}
}

func TestAdminRejectRequiresReason(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	veh, ip := seedVehicleWithPart(t, db, testOwner.ID, "VIN-REJ", time.Now().AddDate(1, 0, 0), 10_000)
	claim, err := svc.CreateClaim(ctx, testOwner, CreateClaimInput{
		VehicleID:       veh.ID,
		InstalledPartID: ip.ID,
		Description:     "phantom rattle",
	})
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}

	if _, err := svc.AdminReject(ctx, testAdmin, claim.ID, "  "); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("empty reason should fail validation, got %v", err)
	}
	rejected, err := svc.AdminReject(ctx, testAdmin, claim.ID, "could not reproduce")
	if err != nil {
		t.Fatalf("AdminReject: %v", err)
	}
	if rejected.Status != StatusRejected || rejected.RejectionReason != "could not reproduce" {
		t.Fatalf("status=%s reason=%q", rejected.Status, rejected.RejectionReason)
	}
}

func TestValidateWarrantyByVIN(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	seedVehicleWithPart(t, db, testOwner.ID, "VIN-CHECK", time.Now().AddDate(0, 0, -10), 30_000)

	res, err := svc.ValidateWarrantyByVIN(ctx, testOwner, "VIN-CHECK", "", 1_000_000)
	if err != nil {
		t.Fatalf("ValidateWarrantyByVIN: %v", err)
	}
	if res.Status != ExpiredDate || !res.CanProvidePaidWarranty || res.Fee != 500_000 {
		t.Fatalf("status=%s canPaid=%v fee=%d", res.Status, res.CanProvidePaidWarranty, res.Fee)
	}

	if _, err := svc.ValidateWarrantyByVIN(ctx, testOwner, "VIN-NOPE", "", 0); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("unknown vin should be not found, got %v", err)
	}
}
