package recall

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

// ---- Campaign ----

func (r *Repo) CreateCampaign(ctx context.Context, c *Campaign) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(c).Error
}

func (r *Repo) UpdateCampaign(ctx context.Context, c *Campaign) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(c).Error
}

func (r *Repo) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Campaign
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCampaignForUpdate 行锁读取，审批/否决/删除在事务内互斥。
func (r *Repo) GetCampaignForUpdate(ctx context.Context, id string) (*Campaign, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Campaign
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) DeleteCampaign(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&Campaign{}).Error
}

func (r *Repo) ListCampaigns(ctx context.Context, status CampaignStatus, offset, limit int) ([]Campaign, int64, error) {
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

	q := db.Model(&Campaign{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var campaigns []Campaign
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&campaigns).Error; err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ---- Response ----

func (r *Repo) CreateResponses(ctx context.Context, responses []Response) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if len(responses) == 0 {
		return nil
	}
	return db.CreateInBatches(responses, 100).Error
}

func (r *Repo) UpdateResponse(ctx context.Context, resp *Response) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(resp).Error
}

func (r *Repo) GetResponse(ctx context.Context, id string) (*Response, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var resp Response
	if err := db.Where("id = ?", id).First(&resp).Error; err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetResponseForUpdate 行锁读取：车主确认与完工回调可能并发触达同一条响应。
func (r *Repo) GetResponseForUpdate(ctx context.Context, id string) (*Response, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var resp Response
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&resp).Error
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *Repo) ListResponsesByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]Response, int64, error) {
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

	q := db.Model(&Response{}).Where("campaign_id = ?", campaignID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var responses []Response
	if err := q.Order("created_at").Offset(offset).Limit(limit).Find(&responses).Error; err != nil {
		return nil, 0, err
	}
	return responses, total, nil
}

// ListResponsesByOwner 车主视角的召回响应：走 vehicles.owner_id 索引联表。
func (r *Repo) ListResponsesByOwner(ctx context.Context, ownerID string) ([]Response, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var responses []Response
	err := db.Model(&Response{}).
		Joins("JOIN vehicles ON vehicles.id = responses.vehicle_id").
		Where("vehicles.owner_id = ?", ownerID).
		Order("responses.created_at DESC").
		Find(&responses).Error
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// CountOpenResponses 活动下未到终态的响应数（召回进度看板用）。
func (r *Repo) CountOpenResponses(ctx context.Context, campaignID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Response{}).
		Where("campaign_id = ? AND status NOT IN ?", campaignID,
			[]ResponseStatus{ResponseCompleted, ResponseDeclined}).
		Count(&n).Error
	return n, err
}
