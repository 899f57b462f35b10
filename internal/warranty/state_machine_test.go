package warranty

import (
	"testing"
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingReview, StatusProcessing, true},
		{StatusPendingReview, StatusRejected, true},
		{StatusProcessing, StatusCompleted, true},

		{StatusPendingReview, StatusCompleted, false},
		{StatusProcessing, StatusRejected, false},
		{StatusProcessing, StatusPendingReview, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusRejected, StatusProcessing, false},
		{StatusCompleted, StatusCompleted, false}, // 同状态也不放行
		{Status("unknown"), StatusProcessing, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionSetsResolutionDate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Claim{Status: StatusProcessing}

	if err := ApplyTransition(c, StatusCompleted, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if c.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", c.Status)
	}
	if c.ResolutionDate == nil || !c.ResolutionDate.Equal(now) {
		t.Fatalf("resolution date not recorded: %v", c.ResolutionDate)
	}
}

func TestApplyTransitionRejectsInvalid(t *testing.T) {
	c := &Claim{Status: StatusCompleted}
	err := ApplyTransition(c, StatusProcessing, time.Now())
	if err == nil {
		t.Fatal("expected error for completed -> processing")
	}
	if !errs.IsKind(err, errs.KindInvalidTransition) {
		t.Fatalf("expected invalid transition kind, got %v", err)
	}
	if c.Status != StatusCompleted {
		t.Fatalf("claim mutated on failed transition: %s", c.Status)
	}
}

func TestIsFinal(t *testing.T) {
	if !IsFinal(StatusCompleted) || !IsFinal(StatusRejected) {
		t.Fatal("completed and rejected should be final")
	}
	if IsFinal(StatusPendingReview) || IsFinal(StatusProcessing) {
		t.Fatal("pending_review and processing should not be final")
	}
}

func TestNewRecallClaim(t *testing.T) {
	now := time.Now()
	c := NewRecallClaim("veh-1", "ip-1", "camp-1", "resp-1", "battery fire risk", now)

	if c.Status != StatusProcessing {
		t.Fatalf("recall claim status = %s, want processing", c.Status)
	}
	if c.IsPaid || c.WarrantyFee != 0 {
		t.Fatal("recall claim must never be paid")
	}
	if c.Description != "RECALL: battery fire risk" {
		t.Fatalf("description = %q", c.Description)
	}
	if !c.FromRecall() {
		t.Fatal("FromRecall should be true")
	}
	if c.RecallCampaignID == nil || *c.RecallCampaignID != "camp-1" {
		t.Fatal("campaign back-reference missing")
	}
}
