package model

import (
	"fmt"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
)

// ProjectRowID is the primary key of the single project row.
const ProjectRowID int64 = 1

const (
	AssetKindNative    = "native"
	AssetKindDelegated = "delegated"
)

// ProjectModel is the persisted project record.
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Organizer   string `json:"organizer" gorm:"not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`

	// AssetKind is native or delegated; AssetRef is the symbol or the administrator.
	AssetKind string `json:"asset_kind" gorm:"type:varchar(16);not null"`
	AssetRef  string `json:"asset_ref" gorm:"not null"`

	// Amounts are stored as decimal strings to keep the full 128-bit range.
	TargetAmount  string `json:"target_amount" gorm:"type:varchar(40);not null"`
	CurrentAmount string `json:"current_amount" gorm:"type:varchar(40);not null;default:'0'"`

	Deadline  uint64 `json:"deadline" gorm:"not null"`
	Status    string `json:"status" gorm:"type:varchar(16);not null"`
	Withdrawn bool   `json:"withdrawn" gorm:"not null;default:false"`
}

func (ProjectModel) TableName() string {
	return "project"
}

// NewProjectModel converts a project to its row.
func NewProjectModel(p *crowdfund.Project) ProjectModel {
	kind, ref := assetColumns(p.Asset)
	return ProjectModel{
		Id:            ProjectRowID,
		Organizer:     string(p.Organizer),
		Title:         p.Title,
		Description:   p.Description,
		AssetKind:     kind,
		AssetRef:      ref,
		TargetAmount:  p.TargetAmount.String(),
		CurrentAmount: p.CurrentAmount.String(),
		Deadline:      p.Deadline,
		Status:        p.Status.String(),
		Withdrawn:     p.Withdrawn,
	}
}

// ToProject converts the row back to a project.
func (m ProjectModel) ToProject() (*crowdfund.Project, error) {
	asset, err := assetFromColumns(m.AssetKind, m.AssetRef)
	if err != nil {
		return nil, err
	}
	target, err := crowdfund.ParseUint128(m.TargetAmount)
	if err != nil {
		return nil, fmt.Errorf("target amount: %w", err)
	}
	current, err := crowdfund.ParseUint128(m.CurrentAmount)
	if err != nil {
		return nil, fmt.Errorf("current amount: %w", err)
	}
	status, err := crowdfund.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &crowdfund.Project{
		Organizer:     crowdfund.Address(m.Organizer),
		Title:         m.Title,
		Description:   m.Description,
		Asset:         asset,
		TargetAmount:  target,
		Deadline:      m.Deadline,
		CurrentAmount: current,
		Status:        status,
		Withdrawn:     m.Withdrawn,
	}, nil
}

func assetColumns(a crowdfund.AssetKind) (string, string) {
	if a.Delegated != nil {
		return AssetKindDelegated, string(a.Delegated.Administrator)
	}
	if a.Native != nil {
		return AssetKindNative, a.Native.Symbol
	}
	return "", ""
}

func assetFromColumns(kind, ref string) (crowdfund.AssetKind, error) {
	switch kind {
	case AssetKindNative:
		return crowdfund.NativeAsset(ref), nil
	case AssetKindDelegated:
		return crowdfund.DelegatedAsset(crowdfund.Address(ref)), nil
	default:
		return crowdfund.AssetKind{}, fmt.Errorf("unknown asset kind %q", kind)
	}
}
