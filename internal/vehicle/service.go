package vehicle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
	"github.com/google/uuid"
)

// Service 封装车辆/装车件的核心用例（不依赖传输层）。
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

// RegisterVehicleInput 登记车辆的入参。
type RegisterVehicleInput struct {
	VIN               string
	Name              string
	Model             string
	OwnerID           string
	Mileage           int
	WarrantyStartDate time.Time
	WarrantyEndDate   time.Time
}

func (s *Service) RegisterVehicle(ctx context.Context, in RegisterVehicleInput) (*Vehicle, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	vin := strings.TrimSpace(in.VIN)
	if vin == "" {
		return nil, errs.Validation("vin required")
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, errs.Validation("owner_id required")
	}
	if in.Mileage < 0 {
		return nil, errs.Validation("mileage must not be negative")
	}
	if !in.WarrantyEndDate.After(in.WarrantyStartDate) {
		return nil, errs.Validation("warranty end date must be after start date")
	}

	v := &Vehicle{
		ID:                uuid.NewString(),
		VIN:               vin,
		Name:              strings.TrimSpace(in.Name),
		Model:             strings.TrimSpace(in.Model),
		OwnerID:           strings.TrimSpace(in.OwnerID),
		Mileage:           in.Mileage,
		WarrantyStartDate: in.WarrantyStartDate,
		WarrantyEndDate:   in.WarrantyEndDate,
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// NewInstalledPart 构造装车件并校验日期约束：保修到期日必须晚于安装日。
func NewInstalledPart(partID, vehicleID, serialNumber string, installedAt, warrantyExpiresAt time.Time) (*InstalledPart, error) {
	if strings.TrimSpace(partID) == "" {
		return nil, errs.Validation("part_id required")
	}
	if strings.TrimSpace(vehicleID) == "" {
		return nil, errs.Validation("vehicle_id required")
	}
	if !warrantyExpiresAt.After(installedAt) {
		return nil, errs.Validation("part warranty expiration date must be after installation date")
	}
	return &InstalledPart{
		ID:                     uuid.NewString(),
		PartID:                 strings.TrimSpace(partID),
		VehicleID:              strings.TrimSpace(vehicleID),
		SerialNumber:           strings.TrimSpace(serialNumber),
		InstallationDate:       installedAt,
		WarrantyExpirationDate: warrantyExpiresAt,
	}, nil
}

// InstalledParts 车辆上全部装车件（车辆档案页用）。
func (s *Service) InstalledParts(ctx context.Context, vehicleID string) ([]InstalledPart, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if _, err := s.repo.FindByID(ctx, vehicleID); err != nil {
		return nil, errs.NotFound("vehicle", vehicleID)
	}
	return s.repo.ListInstalledPartsByVehicle(ctx, vehicleID)
}

// InstallPart 在车辆上登记一个装车件。
func (s *Service) InstallPart(ctx context.Context, partID, vehicleID, serialNumber string, installedAt, warrantyExpiresAt time.Time) (*InstalledPart, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if _, err := s.repo.FindPartByID(ctx, partID); err != nil {
		return nil, errs.NotFound("part", partID)
	}
	if _, err := s.repo.FindByID(ctx, vehicleID); err != nil {
		return nil, errs.NotFound("vehicle", vehicleID)
	}
	ip, err := NewInstalledPart(partID, vehicleID, serialNumber, installedAt, warrantyExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateInstalledPart(ctx, ip); err != nil {
		return nil, err
	}
	return ip, nil
}
