package entities

import "time"

// Lot is a supply-chain batch of a medicine product.
type Lot struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LotNumber   string    `gorm:"size:64;not null;uniqueIndex" json:"lot_number"`
	ProductName string    `gorm:"size:255;not null" json:"product_name"`
	ProductCode string    `gorm:"size:64;index" json:"product_code"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Lot) TableName() string {
	return "lots"
}
