package app

import (
	"gorm.io/gorm"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/config"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/identity"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/notify"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/recall"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/vehicle"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/warranty"
)

// App 聚合全部业务服务，供传输层（gRPC handler）调用。
type App struct {
	Identity *identity.Service
	Vehicle  *vehicle.Service
	Warranty *warranty.Service
	Recall   *recall.Service
}

// New 组装业务服务并接好跨模块回调。
func New(cfg *config.Config, gormDB *gorm.DB, log logger.Logger) *App {
	guard := identity.NewGuard()
	validator := warranty.NewValidator(cfg.Warranty)
	sink := notify.NewBreakerSink(notify.NewLogSink(log))

	vehicleRepo := vehicle.NewRepo(gormDB)

	a := &App{
		Identity: identity.NewService(identity.NewRepo(gormDB), cfg.Auth, log),
		Vehicle:  vehicle.NewService(vehicleRepo),
		Warranty: warranty.NewService(gormDB, warranty.NewRepo(gormDB), vehicleRepo, guard, validator, log),
		Recall:   recall.NewService(gormDB, recall.NewRepo(gormDB), vehicleRepo, guard, log, sink),
	}

	// 召回保修单完工时，同事务推进对应召回响应
	a.Warranty.SetCompletionHook(a.Recall.CompletionHook())
	return a
}

// Migrate 建表/补列。启动时调用一次。
func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&identity.User{},
		&vehicle.Vehicle{},
		&vehicle.Part{},
		&vehicle.InstalledPart{},
		&warranty.Claim{},
		&warranty.WorkLog{},
		&warranty.ServiceHistory{},
		&recall.Campaign{},
		&recall.Response{},
	)
}
