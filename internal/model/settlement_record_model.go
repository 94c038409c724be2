package model

import (
	"fmt"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
)

// SettlementRecordModel is an outbox row for one outbound transfer.
type SettlementRecordModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind      string `json:"kind" gorm:"type:varchar(16);not null"` // withdraw, refund
	Recipient string `json:"recipient" gorm:"not null"`
	Amount    string `json:"amount" gorm:"type:varchar(40);not null"`
	AssetKind string `json:"asset_kind" gorm:"type:varchar(16);not null"`
	AssetRef  string `json:"asset_ref" gorm:"not null"`

	Status         string     `json:"status" gorm:"type:varchar(16);index;default:'pending'"` // pending, success, failed
	TxHash         string     `json:"tx_hash"`
	Reason         string     `json:"reason" gorm:"type:text"`
	Attempts       int        `json:"attempts" gorm:"not null;default:0"`
	NextAttemptAt  *time.Time `json:"next_attempt_at" gorm:"index"`
	SettlementTime *time.Time `json:"settlement_time"`
}

func (SettlementRecordModel) TableName() string {
	return "settlement_record"
}

// NewSettlementRecordModel converts an outbox record to its row.
func NewSettlementRecordModel(r settlement.Record) SettlementRecordModel {
	m := SettlementRecordModel{
		Id:        r.ID,
		CreatedAt: r.CreatedAt,
		Kind:      string(r.Kind),
		Recipient: string(r.Transfer.Recipient),
		Amount:    r.Transfer.Amount.String(),
		Status:    string(r.Status),
		TxHash:    r.TxHash,
		Reason:    r.Reason,
		Attempts:  r.Attempts,
	}
	if !r.NextAttemptAt.IsZero() {
		next := r.NextAttemptAt
		m.NextAttemptAt = &next
	}
	switch {
	case r.Transfer.Native != nil:
		m.AssetKind, m.AssetRef = AssetKindNative, r.Transfer.Native.Symbol
	case r.Transfer.Delegated != nil:
		m.AssetKind, m.AssetRef = AssetKindDelegated, string(r.Transfer.Delegated.Administrator)
	}
	return m
}

// ToRecord converts the row back to an outbox record.
func (m SettlementRecordModel) ToRecord() (settlement.Record, error) {
	amount, err := crowdfund.ParseUint128(m.Amount)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("settlement %s amount: %w", m.Id, err)
	}
	transfer := crowdfund.Transfer{Recipient: crowdfund.Address(m.Recipient), Amount: amount}
	switch m.AssetKind {
	case AssetKindNative:
		transfer.Native = &crowdfund.NativeSend{Symbol: m.AssetRef}
	case AssetKindDelegated:
		transfer.Delegated = &crowdfund.DelegatedSend{Administrator: crowdfund.Address(m.AssetRef)}
	default:
		return settlement.Record{}, fmt.Errorf("settlement %s: unknown asset kind %q", m.Id, m.AssetKind)
	}
	rec := settlement.Record{
		ID:        m.Id,
		Kind:      settlement.Kind(m.Kind),
		Transfer:  transfer,
		Status:    settlement.Status(m.Status),
		TxHash:    m.TxHash,
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
		Attempts:  m.Attempts,
	}
	if m.NextAttemptAt != nil {
		rec.NextAttemptAt = *m.NextAttemptAt
	}
	return rec, nil
}
