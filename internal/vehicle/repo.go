package vehicle

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Upsert(ctx context.Context, v *Vehicle) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) FindByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := r.db.WithContext(ctx).Where("vin = ?", vin).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) List(ctx context.Context, ownerID string, offset, limit int) ([]Vehicle, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := r.db.WithContext(ctx).Model(&Vehicle{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []Vehicle
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// ---- InstalledPart ----

func (r *Repo) CreateInstalledPart(ctx context.Context, ip *InstalledPart) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(ip).Error
}

func (r *Repo) FindInstalledPartByID(ctx context.Context, id string) (*InstalledPart, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var ip InstalledPart
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ip).Error; err != nil {
		return nil, err
	}
	return &ip, nil
}

// ListInstalledPartsByPart 找出装了某目录件的所有安装记录（召回影响面枚举）。
func (r *Repo) ListInstalledPartsByPart(ctx context.Context, partID string) ([]InstalledPart, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var parts []InstalledPart
	if err := r.db.WithContext(ctx).Where("part_id = ?", partID).Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

// FindInstalledPartForVehicle 在指定车辆上找某目录件的安装记录。
// 召回接受时用它定位要修的装车件；找不到说明数据不一致，由调用方定性。
func (r *Repo) FindInstalledPartForVehicle(ctx context.Context, vehicleID, partID string) (*InstalledPart, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var ip InstalledPart
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND part_id = ?", vehicleID, partID).
		First(&ip).Error
	if err != nil {
		return nil, err
	}
	return &ip, nil
}

func (r *Repo) ListInstalledPartsByVehicle(ctx context.Context, vehicleID string) ([]InstalledPart, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var parts []InstalledPart
	if err := r.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

// ---- Part 目录 ----

func (r *Repo) FindPartByID(ctx context.Context, id string) (*Part, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Part
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
