package model

import (
	"time"
)

// DepositModel records an inbound deposit transaction that has been credited.
type DepositModel struct {
	TxHash    string    `json:"tx_hash" gorm:"primaryKey;type:varchar(66)"`
	CreatedAt time.Time `json:"created_at"`
}

func (DepositModel) TableName() string {
	return "deposit"
}
