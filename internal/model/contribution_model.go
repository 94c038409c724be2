package model

import (
	"time"
)

// ContributionModel is one ledger entry: the cumulative pledge of an address.
type ContributionModel struct {
	Address   string    `json:"address" gorm:"primaryKey"`
	Amount    string    `json:"amount" gorm:"type:varchar(40);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ContributionModel) TableName() string {
	return "contribution"
}
