package notify

import (
	"context"
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/middleware"
)

// Sink 对外通知出口（站内信/短信网关等）。
// 通知失败不阻塞业务流程，调用方只记日志。
type Sink interface {
	// CampaignApproved 召回活动批准后广播给受影响车主。
	CampaignApproved(ctx context.Context, campaignID, partID string, vehicleCount int) error
	// RecallDeclined 车主拒绝召回时告警给发起方。
	RecallDeclined(ctx context.Context, campaignID, vehicleID string) error
}

// LogSink 日志实现：没有接入真实网关时的默认出口。
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) CampaignApproved(ctx context.Context, campaignID, partID string, vehicleCount int) error {
	s.log.WithFields(map[string]interface{}{
		"campaign_id":   campaignID,
		"part_id":       partID,
		"vehicle_count": vehicleCount,
	}).Info("recall campaign approved, owners notified")
	return nil
}

func (s *LogSink) RecallDeclined(ctx context.Context, campaignID, vehicleID string) error {
	s.log.WithFields(map[string]interface{}{
		"campaign_id": campaignID,
		"vehicle_id":  vehicleID,
	}).Warn("recall declined by customer")
	return nil
}

// BreakerSink 给底层通知出口加熔断：网关持续失败时快速失败，避免拖慢召回流程。
type BreakerSink struct {
	next Sink
	cb   *middleware.CircuitBreaker
}

func NewBreakerSink(next Sink) *BreakerSink {
	return &BreakerSink{
		next: next,
		cb:   middleware.NewCircuitBreaker("notify", 5, 30*time.Second),
	}
}

func (s *BreakerSink) CampaignApproved(ctx context.Context, campaignID, partID string, vehicleCount int) error {
	return s.cb.Call(ctx, func() error {
		return s.next.CampaignApproved(ctx, campaignID, partID, vehicleCount)
	})
}

func (s *BreakerSink) RecallDeclined(ctx context.Context, campaignID, vehicleID string) error {
	return s.cb.Call(ctx, func() error {
		return s.next.RecallDeclined(ctx, campaignID, vehicleID)
	})
}
