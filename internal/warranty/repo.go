package warranty

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

// NewRepo 可用连接池或事务句柄构造（事务内操作传 tx）。
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, c *Claim) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(c).Error
}

func (r *Repo) Update(ctx context.Context, c *Claim) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(c).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Claim, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Claim
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByIDForUpdate 行锁读取，事务内用于串行化同一保修单上的并发操作。
func (r *Repo) GetByIDForUpdate(ctx context.Context, id string) (*Claim, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Claim
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListFilter 查询条件。
type ListFilter struct {
	Status     Status
	VehicleID  string
	AssignedTo string
	Offset     int
	Limit      int
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Claim, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Claim{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_tech_id = ?", f.AssignedTo)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var claims []Claim
	if err := q.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&claims).Error; err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// ListByOwner 按车主查询保修单：走 vehicles.owner_id 索引联表，不做全表内存过滤。
func (r *Repo) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]Claim, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Claim{}).
		Joins("JOIN vehicles ON vehicles.id = claims.vehicle_id").
		Where("vehicles.owner_id = ?", ownerID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var claims []Claim
	if err := q.Order("claims.created_at DESC").Offset(offset).Limit(limit).Find(&claims).Error; err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// ---- WorkLog ----

func (r *Repo) CreateWorkLog(ctx context.Context, wl *WorkLog) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(wl).Error
}

func (r *Repo) UpdateWorkLog(ctx context.Context, wl *WorkLog) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(wl).Error
}

// FindOpenWorkLog 找某技师在某保修单上未收尾的工时记录。
func (r *Repo) FindOpenWorkLog(ctx context.Context, claimID, technicianID string) (*WorkLog, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var wl WorkLog
	err := db.Where("claim_id = ? AND technician_id = ? AND end_time IS NULL", claimID, technicianID).
		Order("start_time DESC").First(&wl).Error
	if err != nil {
		return nil, err
	}
	return &wl, nil
}

func (r *Repo) ListWorkLogs(ctx context.Context, claimID string) ([]WorkLog, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var logs []WorkLog
	if err := db.Where("claim_id = ?", claimID).Order("start_time").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// ---- ServiceHistory ----

func (r *Repo) CreateServiceHistory(ctx context.Context, sh *ServiceHistory) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(sh).Error
}

func (r *Repo) ListServiceHistory(ctx context.Context, vehicleID string) ([]ServiceHistory, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var hs []ServiceHistory
	if err := db.Where("vehicle_id = ?", vehicleID).Order("service_date DESC").Find(&hs).Error; err != nil {
		return nil, err
	}
	return hs, nil
}
